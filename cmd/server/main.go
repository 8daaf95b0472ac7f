package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/profitrecon/internal/config"
	"github.com/JonMunkholm/profitrecon/internal/importer"
	"github.com/JonMunkholm/profitrecon/internal/logging"
	"github.com/JonMunkholm/profitrecon/internal/metrics"
	"github.com/JonMunkholm/profitrecon/internal/parser"
	"github.com/JonMunkholm/profitrecon/internal/reconcile"
	"github.com/JonMunkholm/profitrecon/internal/staging"
	"github.com/JonMunkholm/profitrecon/internal/stats"
	"github.com/JonMunkholm/profitrecon/internal/store"
	"github.com/JonMunkholm/profitrecon/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()
	m := metrics.New()
	checks := make(map[string]web.Pinger)

	records, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer records.Close()
	checks["store"] = records

	// Background jobs stop when jobCtx is cancelled.
	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	var sessions staging.Store
	switch cfg.Staging.Driver {
	case config.StagingRedis:
		client, err := staging.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()
		rs := staging.NewRedisStore(client, staging.Options{TTL: cfg.Staging.TTL, Grace: cfg.Staging.Grace})
		sessions = rs
		checks["staging"] = rs
		slog.Info("staging sessions in redis")
	default:
		ms := staging.NewMemoryStore(staging.Options{TTL: cfg.Staging.TTL, Grace: cfg.Staging.Grace})
		sessions = ms
		go staging.RunSweeper(jobCtx, ms, cfg.Staging.SweepInterval, func(int) {
			m.SetStagedSessions(ms.Len())
		})
	}

	engine := reconcile.New(records, reconcile.Options{
		Workers:   cfg.Recalc.Workers,
		QueueSize: cfg.Recalc.QueueSize,
		Metrics:   m,
	})
	engine.Start(jobCtx)

	limiter := importer.NewLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	imports := importer.NewService(importer.Config{
		Parser: parser.New(parser.Options{
			MaxRows:          cfg.Upload.MaxRows,
			FallbackEncoding: cfg.Parser.FallbackEncoding,
		}),
		Staging: sessions,
		Store:   records,
		Engine:  engine,
		Limiter: limiter,
		Metrics: m,
	})

	server := web.NewServer(cfg, web.Deps{
		Importer: imports,
		Engine:   engine,
		Stats:    stats.New(records),
		Metrics:  m,
		Checks:   checks,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-sigCh:
		slog.Info("shutting down...", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if active := limiter.ActiveCount(); active > 0 {
		slog.Info("waiting for uploads to complete", "active", active)
		if err := limiter.WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("uploads did not complete in time", "error", err)
		} else {
			slog.Info("all uploads completed")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	// Queued recalculations are dropped; they are recomputed by the next
	// recalculateAll.
	cancelJobs()
	engine.Wait()
	slog.Info("shutdown complete", "dropped_recalculations", engine.Pending())
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.Driver != config.StorePostgres {
		slog.Warn("using in-memory record store; data is lost on restart")
		return store.NewMemory(), nil
	}

	pool, err := store.OpenPool(ctx, store.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Store.MigrateOnStart {
		if err := store.Migrate(pool); err != nil {
			pool.Close()
			return nil, err
		}
		slog.Info("database migrations applied")
	}
	slog.Info("connected to database", "max_conns", cfg.Database.MaxConns)
	return store.NewPostgres(pool), nil
}
