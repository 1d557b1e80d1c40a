package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/hallway/internal/api"
	"github.com/hallway/internal/broadcast"
	"github.com/hallway/internal/chat"
	"github.com/hallway/internal/config"
	"github.com/hallway/internal/database"
	"github.com/hallway/internal/jobqueue"
	"github.com/hallway/internal/ratelimit"
	"github.com/hallway/internal/retry"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the hallway API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if port := c.Int("port"); port != 0 {
				cfg.Server.Port = port
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			return runServer(c.Context, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	dbURL, err := database.ResolveURL(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to resolve database URL: %w", err)
	}

	// Containers race each other on boot, so connect with backoff.
	var db *sql.DB
	result := retry.RetryWithBackoff(ctx, retry.ConnectRetryConfig(), func() error {
		var cerr error
		db, cerr = database.NewDBWithURL(dbURL)
		return cerr
	})
	if !result.Success {
		return fmt.Errorf("failed to connect to database: %w", result.LastError)
	}
	defer db.Close()

	broadcaster, err := newBroadcaster(ctx, cfg)
	if err != nil {
		return err
	}
	defer broadcaster.Close()

	messages := chat.NewMessageStore(db)
	conversations := chat.NewConversationStore(db)
	receipts := chat.NewReceiptStore(db)

	limiter := ratelimit.New(cfg.Chat.RateLimit, cfg.RateWindow())
	stopSweep := limiter.Run(cfg.RateWindow())
	defer stopSweep()

	queue, err := jobqueue.NewJobQueue(dbURL, conversations, broadcaster)
	if err != nil {
		return fmt.Errorf("failed to create job queue: %w", err)
	}
	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job queue: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := queue.Stop(stopCtx); err != nil {
			log.Warn().Err(err).Msg("Job queue did not stop cleanly")
		}
	}()

	svc := chat.NewService(messages, conversations, receipts, limiter, broadcaster, queue)
	svc.SetPublishTimeout(time.Duration(cfg.Broadcast.PublishTimeoutMS) * time.Millisecond)

	log.Info().
		Int("port", cfg.Server.Port).
		Str("broadcast_mode", cfg.Broadcast.Mode).
		Msg("Starting hallway API server")

	pollInterval := time.Duration(cfg.Chat.PollInterval) * time.Second
	server := api.NewServer(cfg.Server.Port, svc, broadcaster, cfg.Auth.JWTSecret, pollInterval)
	return server.Start()
}

// newBroadcaster picks the transport from config. No configuration degrades
// to polling-only, not an error.
func newBroadcaster(ctx context.Context, cfg *config.Config) (broadcast.Broadcaster, error) {
	switch cfg.Broadcast.Mode {
	case "redis":
		var b *broadcast.RedisBroadcaster
		result := retry.RetryWithBackoff(ctx, retry.ConnectRetryConfig(), func() error {
			var cerr error
			b, cerr = broadcast.NewRedisBroadcaster(cfg.Broadcast.RedisURL)
			return cerr
		})
		if !result.Success {
			return nil, fmt.Errorf("failed to connect to redis: %w", result.LastError)
		}
		return b, nil
	case "memory":
		return broadcast.NewMemoryHub(), nil
	default:
		log.Warn().Msg("No broadcast transport configured, running polling-only")
		return broadcast.NopBroadcaster{}, nil
	}
}
