package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/oliullah100/kolmo/internal/auth"
	"github.com/oliullah100/kolmo/internal/logging"
	"github.com/oliullah100/kolmo/internal/message"
	"github.com/oliullah100/kolmo/internal/platform/presence"
	"github.com/oliullah100/kolmo/internal/realtime"
	"github.com/oliullah100/kolmo/internal/server"
)

const defaultDBTimeout = 10 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := server.LoadConfig(os.Getenv(server.ConfigPathEnv))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server stopped")
	}
}

func run(cfg server.Config, logger zerolog.Logger) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_ACCESS_SECRET is required")
	}
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	manager := realtime.NewManager(realtime.Options{
		Verifier:        verifier,
		Logger:          logger,
		CheckOrigin:     server.NewOriginPolicy(cfg.AllowedOrigins, logger).CheckOrigin,
		SendBuffer:      cfg.SendBuffer,
		MaxMessageSize:  cfg.MaxMessageSize,
		RateLimit:       realtime.RateLimit{Burst: cfg.RateLimit.Burst, Interval: cfg.RateLimit.RefillInterval},
		CloseSuperseded: cfg.CloseSuperseded,
	})

	routes := server.Routes{Manager: manager, Verifier: verifier, Logger: logger}

	if cfg.DatabaseURL != "" {
		db, err := openDatabase(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		svc := message.NewService(message.NewStore(db), manager, logger)
		routes.Messages = message.NewHandler(svc, logger)
		logger.Info().Msg("Message API enabled")
	} else {
		logger.Warn().Msg("DATABASE_URL not set; message API disabled")
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		mirror, err := presence.NewRedisMirror(rdb, presence.MirrorOptions{Prefix: cfg.Redis.Prefix, TTL: cfg.Redis.TTL}, logger)
		if err != nil {
			return err
		}
		manager.Presence().Subscribe(mirror)

		refreshCtx, stopRefresh := context.WithCancel(context.Background())
		defer stopRefresh()
		go mirror.RunRefresh(refreshCtx, manager)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Redis presence mirror enabled")
	}

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(routes))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer, logger)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serveErr:
		return err
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown requested")
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown incomplete")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return manager.Shutdown(ctx)
}

func openDatabase(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultDBTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := message.Apply(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply message schema: %w", err)
	}
	return db, nil
}
