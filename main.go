package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zlnvch/sketchrelay/api"
	"github.com/zlnvch/sketchrelay/cache/redis"
	"github.com/zlnvch/sketchrelay/config"
	"github.com/zlnvch/sketchrelay/logger"
	"github.com/zlnvch/sketchrelay/mq/sqsmq"
	"github.com/zlnvch/sketchrelay/roomapi"
	"github.com/zlnvch/sketchrelay/store/dynamo"
	"github.com/zlnvch/sketchrelay/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logCfg := logger.Init(logger.Config{
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		FilePath:  cfg.Logging.FilePath,
	})

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	deps, cleanup, err := buildDeps(shutdownCtx, cfg)
	if err != nil {
		slog.Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	relayAPI, err := api.NewRelayAPI(cfg, deps, logCfg.InstanceID, shutdownCtx)
	if err != nil {
		slog.Error("failed to create relay api", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           relayAPI.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.HTTP.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			stop()
		}
	}()

	<-shutdownCtx.Done()
	slog.Info("server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("graceful shutdown failed", "err", err)
	}

	if !relayAPI.WaitForWorkers(10 * time.Second) {
		slog.Warn("workers did not finish their final flush in time")
	}
}

func buildDeps(ctx context.Context, cfg *config.Config) (api.Deps, func(), error) {
	var deps api.Deps
	cleanup := func() {}

	switch cfg.Store.Backend {
	case config.StoreDynamo:
		s, err := dynamo.NewDynamoRelayStore(ctx, cfg.DevMode, cfg.Store.DynamoURL, cfg.Store.DynamoTable)
		if err != nil {
			return deps, cleanup, err
		}
		deps.Store = s
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			DSN:             cfg.Store.PostgresDSN,
			ApplicationName: cfg.Logging.Service,
		})
		if err != nil {
			return deps, cleanup, err
		}
		s := postgres.NewPostgresRelayStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return deps, cleanup, err
		}
		deps.Store = s
		cleanup = pool.Close
	}

	if cfg.Redis.Endpoint != "" {
		c, err := redis.NewRedisRelayCache(ctx, cfg.DevMode, cfg.Redis.Endpoint)
		if err != nil {
			return deps, cleanup, err
		}
		deps.Cache = c
		prev := cleanup
		cleanup = func() {
			prev()
			c.Close()
		}
	} else {
		slog.Warn("no redis endpoint, running as a single instance")
	}

	if cfg.SQS.ChatRetryQueue != "" && deps.Store != nil {
		q, err := sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.SQS.Endpoint, cfg.SQS.ChatRetryQueue)
		if err != nil {
			return deps, cleanup, err
		}
		deps.ChatRetryQueue = q
	}

	if cfg.Rooms.VerifyOnJoin {
		rooms, err := roomapi.NewClient(ctx, roomapi.Config{
			BaseURL:      cfg.Rooms.DirectoryURL,
			Timeout:      cfg.RoomLookupTimeout(),
			ClientID:     cfg.Rooms.ClientID,
			ClientSecret: cfg.Rooms.ClientSecret,
			TokenURL:     cfg.Rooms.TokenURL,
		})
		if err != nil {
			return deps, cleanup, err
		}
		deps.Rooms = rooms
	}

	return deps, cleanup, nil
}
