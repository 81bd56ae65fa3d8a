package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-gateway/internal/auth"
	"github.com/noah-isme/gema-chat-gateway/internal/config"
	"github.com/noah-isme/gema-chat-gateway/internal/database"
	"github.com/noah-isme/gema-chat-gateway/internal/handler"
	"github.com/noah-isme/gema-chat-gateway/internal/middleware"
	"github.com/noah-isme/gema-chat-gateway/internal/realtime"
	"github.com/noah-isme/gema-chat-gateway/internal/repository"
	"github.com/noah-isme/gema-chat-gateway/internal/router"
	"github.com/noah-isme/gema-chat-gateway/internal/service"
	"github.com/noah-isme/gema-chat-gateway/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	eventValidator, err := validation.New(validate)
	if err != nil {
		log.Fatalf("failed to compile event schemas: %v", err)
	}
	verifier := auth.NewHMACVerifier(cfg.JWTSecret)

	userRepo := repository.NewUserRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	callRepo := repository.NewCallRepository(db)

	hub := realtime.NewHub(logger)
	bus := realtime.NewBus(hub, redisClient, natsConn, cfg.ChannelBase, logger)

	presenceService := service.NewPresenceService(userRepo, bus, cfg.PresenceWrite, logger)
	roomService := service.NewRoomService(roomRepo, messageRepo, logger)
	messageService := service.NewMessageService(roomRepo, messageRepo, userRepo, bus, logger)
	typingService := service.NewTypingService(roomRepo, userRepo, bus)
	callService := service.NewCallService(roomRepo, callRepo, bus, cfg.Realtime.RingTimeout, logger)
	defer callService.Close()

	gateway := realtime.NewGateway(hub, bus, verifier, eventValidator, realtime.Services{
		Presence: presenceService,
		Rooms:    roomService,
		Messages: messageService,
		Typing:   typingService,
		Calls:    callService,
	}, realtime.Options{
		SendBuffer:      cfg.Realtime.SendBuffer,
		ReadLimit:       cfg.Realtime.ReadLimit,
		PongWait:        cfg.Realtime.PongWait,
		PingPeriod:      cfg.Realtime.PingPeriod,
		EventsPerSecond: cfg.Realtime.EventsPerSecond,
		EventBurst:      cfg.Realtime.EventBurst,
		MaxInflight:     cfg.Realtime.MaxInflight,
	}, logger)

	busCtx, stopBus := context.WithCancel(context.Background())
	defer stopBus()
	if err := bus.Start(busCtx); err != nil {
		log.Fatalf("failed to start realtime bus: %v", err)
	}

	chatHandler := handler.NewChatHandler(gateway, logger)
	roomHandler := handler.NewRoomHandler(roomService, messageService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSOrigins,
	})
	router.Register(app, cfg, router.Dependencies{
		ChatHandler:   chatHandler,
		RoomHandler:   roomHandler,
		JWTMiddleware: middleware.JWTProtected(verifier),
		Connections:   hub.ConnectionCount,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
	gateway.Wait()
	presenceService.Wait()
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
