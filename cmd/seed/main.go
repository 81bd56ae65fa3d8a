package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-chat-gateway/internal/auth"
	"github.com/noah-isme/gema-chat-gateway/internal/config"
	"github.com/noah-isme/gema-chat-gateway/internal/database"
	"github.com/noah-isme/gema-chat-gateway/internal/repository"
	"github.com/noah-isme/gema-chat-gateway/internal/service"
)

const seedTimeout = time.Minute

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the seed command. Connection settings come from the same
// CHAT_* environment as the gateway.
func newRootCmd() *cobra.Command {
	var (
		planPath string
		tokenTTL time.Duration
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed chat users and rooms for local development",
		Long: `seed creates users and rooms through the room service, so private rooms
keep exactly two participants, then prints a signed access token per user.
Running it twice reuses existing users by username.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan, err := loadPlan(planPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), seedTimeout)
			defer cancel()
			return runSeed(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), plan, tokenTTL)
		},
	}

	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.Flags().StringVar(&planPath, "plan", "", "path to a JSON seed plan (default is the built-in demo plan)")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the printed access tokens")

	return cmd
}

func loadPlan(path string) (service.SeedPlan, error) {
	if path == "" {
		return service.DefaultSeedPlan(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return service.SeedPlan{}, fmt.Errorf("failed to read seed plan: %w", err)
	}
	var plan service.SeedPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return service.SeedPlan{}, fmt.Errorf("failed to parse seed plan: %w", err)
	}
	return plan, nil
}

func runSeed(ctx context.Context, out, logOut io.Writer, plan service.SeedPlan, tokenTTL time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := zerolog.New(logOut).With().Timestamp().Str("component", "seed").Logger()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	roomService := service.NewRoomService(repository.NewRoomRepository(db), repository.NewMessageRepository(db), logger)
	seeder := service.NewSeedService(userRepo, roomService, logger)

	result, err := seeder.Seed(ctx, plan)
	if err != nil {
		return fmt.Errorf("failed to seed chat data: %w", err)
	}

	for _, user := range result.Users {
		token, err := auth.IssueToken(cfg.JWTSecret, user.ID, user.Username, tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to issue token for %s: %w", user.Username, err)
		}
		fmt.Fprintf(out, "%d\t%s\t%s\n", user.ID, user.Username, token)
	}
	for _, room := range result.Rooms {
		fmt.Fprintf(out, "room %d\t%s\t%s\t%d participants\n", room.ID, room.Type, room.Name, len(room.Participants))
	}
	return nil
}
