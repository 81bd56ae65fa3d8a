package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the chat gateway.
type Config struct {
	AppName        string
	AppEnv         string
	AppPort        string
	LogLevel       string
	DatabaseDriver string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	ChannelBase    string
	JWTSecret      string
	CORSOrigins    string
	Realtime       RealtimeConfig
	PresenceWrite  time.Duration
}

// RealtimeConfig tunes websocket sessions and call signaling.
type RealtimeConfig struct {
	SendBuffer      int
	ReadLimit       int64
	PingPeriod      time.Duration
	PongWait        time.Duration
	EventsPerSecond float64
	EventBurst      int
	MaxInflight     int
	RingTimeout     time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Chat Gateway")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("realtime.channel", "gema")
	v.SetDefault("realtime.send_buffer", 64)
	v.SetDefault("realtime.read_limit", 64*1024)
	v.SetDefault("realtime.ping_period", "50s")
	v.SetDefault("realtime.pong_wait", "60s")
	v.SetDefault("realtime.events_per_second", 20)
	v.SetDefault("realtime.event_burst", 40)
	v.SetDefault("realtime.max_inflight", 16)
	v.SetDefault("realtime.ring_timeout", "45s")
	v.SetDefault("presence.timeout", "5s")
	v.SetDefault("cors.allow_origins", "*")

	durations := map[string]time.Duration{}
	for _, key := range []string{"realtime.ping_period", "realtime.pong_wait", "realtime.ring_timeout", "presence.timeout"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:        v.GetString("app.name"),
		AppEnv:         v.GetString("app.env"),
		AppPort:        v.GetString("app.port"),
		LogLevel:       strings.ToLower(v.GetString("log.level")),
		DatabaseDriver: strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:    v.GetString("database.url"),
		RedisURL:       v.GetString("redis.url"),
		NATSURL:        v.GetString("nats.url"),
		ChannelBase:    v.GetString("realtime.channel"),
		JWTSecret:      v.GetString("jwt.secret"),
		CORSOrigins:    v.GetString("cors.allow_origins"),
		Realtime: RealtimeConfig{
			SendBuffer:      v.GetInt("realtime.send_buffer"),
			ReadLimit:       v.GetInt64("realtime.read_limit"),
			PingPeriod:      durations["realtime.ping_period"],
			PongWait:        durations["realtime.pong_wait"],
			EventsPerSecond: v.GetFloat64("realtime.events_per_second"),
			EventBurst:      v.GetInt("realtime.event_burst"),
			MaxInflight:     v.GetInt("realtime.max_inflight"),
			RingTimeout:     durations["realtime.ring_timeout"],
		},
		PresenceWrite: durations["presence.timeout"],
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	if cfg.DatabaseDriver == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided for postgres")
	}

	if cfg.Realtime.PingPeriod >= cfg.Realtime.PongWait {
		return Config{}, fmt.Errorf("realtime ping period must be shorter than pong wait")
	}

	return cfg, nil
}
