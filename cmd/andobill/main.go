package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/andobill/pkg/api"
	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/config"
	"github.com/platinummonkey/andobill/pkg/maintenance"
	"github.com/platinummonkey/andobill/pkg/observability"
	"github.com/platinummonkey/andobill/pkg/storage/postgres"
	"github.com/platinummonkey/andobill/pkg/storage/redisstore"
	"github.com/platinummonkey/andobill/pkg/throttle"
)

var version = "dev"

func main() {
	migrate := flag.Bool("migrate", false, "Apply pending migrations before serving")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	if err := run(cfg, logger, *migrate || cfg.Database.MigrateOnStart); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger, migrate bool) error {
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, postgres.ConnectionConfig{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	logger.Info("Connected to PostgreSQL")

	if migrate {
		if err := postgres.RunMigrations(ctx, db, postgres.DialectPostgres); err != nil {
			db.Close()
			return err
		}
		logger.Info("Migrations applied")
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = redisstore.NewClient(ctx, redisstore.Options{
			URL:        cfg.Redis.URL,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			db.Close()
			return err
		}
		logger.Info("Connected to Redis")
	} else {
		logger.Warn("No Redis configured, using in-process limiter and sessions (single instance only)")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	auditStore, err := audit.NewDBLogger(db)
	if err != nil {
		return err
	}
	auditLogger := audit.NewMultiLogger(audit.NewLogLogger(logger), auditStore)
	auditLogger.SetAsync(true)

	server, err := api.NewServer(api.Deps{
		Config:     cfg,
		DB:         db,
		Dialect:    postgres.DialectPostgres,
		Redis:      redisClient,
		Logger:     logger,
		Registry:   registry,
		Metrics:    metrics,
		Audit:      auditLogger,
		AuditStore: auditStore,
		Version:    version,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)

	if cfg.Maintenance.Enabled {
		var sweeper maintenance.Sweeper
		if mem, ok := server.Limiter.(*throttle.MemoryLimiter); ok {
			sweeper = mem
		}
		scheduler := maintenance.NewScheduler(maintenance.Config{
			PruneSchedule:    cfg.Maintenance.PruneSchedule,
			SweepSchedule:    cfg.Maintenance.SweepSchedule,
			AttemptRetention: cfg.Maintenance.AttemptRetention,
			AuditRetention:   cfg.Maintenance.AuditRetention,
		}, server.Attempts, auditStore, sweeper, logger)
		if err := scheduler.Register(); err != nil {
			return err
		}
		scheduler.Start()
		shutdown.Register("maintenance", scheduler.Stop)
	}

	stopStats := make(chan struct{})
	go reportDBStats(db, metrics, stopStats)

	shutdown.Register("db-stats", func(context.Context) error {
		close(stopStats)
		return nil
	})
	shutdown.Register("audit", func(context.Context) error {
		auditLogger.Wait()
		return nil
	})
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	if providers != nil {
		shutdown.Register("otel", func(ctx context.Context) error { return observability.ShutdownOTel(ctx, providers) })
	}

	go func() {
		logger.Infof("Starting AndoBill %s on %s", version, httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	return shutdown.WaitForShutdown()
}

func reportDBStats(db *sql.DB, metrics *observability.Metrics, stop <-chan struct{}) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.RecordDBStats(db.Stats())
		case <-stop:
			return
		}
	}
}
