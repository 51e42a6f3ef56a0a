package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/chorus/internal/agent"
	"github.com/gosuda/chorus/internal/agent/backends"
	v1 "github.com/gosuda/chorus/internal/api/v1"
	"github.com/gosuda/chorus/internal/broadcast"
	"github.com/gosuda/chorus/internal/collab"
	"github.com/gosuda/chorus/internal/config"
	"github.com/gosuda/chorus/internal/domain"
	"github.com/gosuda/chorus/internal/seed"
	"github.com/gosuda/chorus/internal/server"
	"github.com/gosuda/chorus/internal/store/postgres"
	redisstore "github.com/gosuda/chorus/internal/store/redis"
	"github.com/gosuda/chorus/internal/store/sqlite"
)

// appStore is what both store backends provide.
type appStore interface {
	v1.DataStore
	domain.ConversationStore
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("CHORUS_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil || logLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("CHORUS_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.SeedFile != "" {
		file, seedErr := seed.Load(cfg.SeedFile)
		if seedErr != nil {
			return seedErr
		}
		if _, seedErr = seed.Apply(ctx, store, file); seedErr != nil {
			return seedErr
		}
	}

	events, sub, closeBroadcast, err := openBroadcast(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBroadcast()

	// Create producer registry and register backends.
	registry := agent.NewRegistry()
	registry.Register("mock", agent.NewMockFactory)
	registry.Register("openai", backends.NewOpenAIProducer)
	registry.Register("anthropic", backends.NewAnthropicProducer)

	producer, err := registry.Create(cfg.Producer.Name, producerOptions(cfg))
	if err != nil {
		return fmt.Errorf("producer (available: %v): %w", registry.Available(), err)
	}

	orchestrator := collab.NewOrchestrator(store, producer, events,
		collab.WithDeferredEvents(cfg.Broadcast.Defer),
		collab.WithRunTimeout(cfg.Run.Timeout),
	)

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, store, orchestrator, sub)

	// Start server in background goroutine.
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("store", cfg.Store).
			Str("broadcast", cfg.Broadcast.Backend).
			Str("producer", cfg.Producer.Name).
			Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (appStore, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
			return nil, nil, fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
		}

		store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
		if err != nil {
			return nil, nil, err
		}
		if err = store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		store, err := sqlite.New(ctx, cfg.SQLite.Path, cfg.SQLiteBusyTimeout())
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if closeErr := store.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("sqlite close")
			}
		}, nil
	}
}

// openBroadcast returns the event broadcaster for the orchestrator and the
// subscriber backing the WebSocket endpoint. sub is nil when broadcasting is
// disabled.
func openBroadcast(ctx context.Context, cfg *config.Config) (broadcast.Broadcaster, broadcast.Subscriber, func(), error) {
	switch cfg.Broadcast.Backend {
	case config.BroadcastRedis:
		pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, nil, err
		}
		return broadcast.NewPubSub(pubsub, cfg.Broadcast.Timeout), pubsub, func() {
			if closeErr := pubsub.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("redis close")
			}
		}, nil
	case config.BroadcastMemory:
		hub := broadcast.NewHub()
		return broadcast.NewPubSub(hub, cfg.Broadcast.Timeout), hub, func() {}, nil
	default:
		return broadcast.Nop{}, nil, func() {}, nil
	}
}

func producerOptions(cfg *config.Config) agent.Options {
	opts := agent.Options{
		MaxTokens: cfg.Producer.MaxTokens,
		Delay:     cfg.Producer.MockDelay,
	}
	switch cfg.Producer.Name {
	case "openai":
		opts.APIKey = cfg.Producer.OpenAIAPIKey
		opts.Model = cfg.Producer.OpenAIModel
	case "anthropic":
		opts.APIKey = cfg.Producer.AnthropicAPIKey
		opts.Model = cfg.Producer.AnthropicModel
	}
	return opts
}
