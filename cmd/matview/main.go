package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aevon-lab/matview/internal/core/aggregation"
	corecfg "github.com/aevon-lab/matview/internal/core/config"
	"github.com/aevon-lab/matview/internal/core/partition"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/aevon-lab/matview/internal/core/storage/badger"
	"github.com/aevon-lab/matview/internal/core/storage/memory"
	"github.com/aevon-lab/matview/internal/core/storage/postgres"
	"github.com/aevon-lab/matview/internal/ingestion"
	"github.com/aevon-lab/matview/internal/metrics"
	"github.com/aevon-lab/matview/internal/migration"
	"github.com/aevon-lab/matview/internal/migrations"
	"github.com/aevon-lab/matview/internal/pipeline"
	"github.com/aevon-lab/matview/internal/projection"
	"github.com/aevon-lab/matview/internal/schema"
	"github.com/aevon-lab/matview/internal/server"
	"github.com/aevon-lab/matview/internal/view"
)

func main() {
	configPath := flag.String("config", "matview.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Storage
	store, health, err := openStore(cfg.Database)
	if err != nil {
		slog.Error("Failed to initialize storage", "type", cfg.Database.Type, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 3. Load Payload Schema
	payloadSchema, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		slog.Error("Failed to load payload schema", "path", cfg.Schema.Path, "error", err)
		os.Exit(1)
	}
	slog.Info("Payload schema loaded",
		"name", payloadSchema.Name,
		"fingerprint", payloadSchema.Fingerprint,
		"views", len(cfg.ViewLoading.Views))

	// 4. Initialize Metrics
	collector := metrics.NewCollector()
	registry, err := metrics.NewRegistry(collector)
	if err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	// 5. Initialize Pipeline
	writer := view.NewWriter(store, view.Options{
		MaxAttempts: cfg.Writer.MaxAttempts,
		BaseDelay:   cfg.Writer.BaseDelay,
		MaxDelay:    cfg.Writer.MaxDelay,
		Concurrency: cfg.Writer.Concurrency,
		Dedup:       cfg.Pipeline.Dedup,
	})

	deps := pipeline.Dependencies{
		Source:      store,
		Checkpoints: store,
		DeadLetters: store,
		Folder:      aggregation.NewFolder(cfg.ViewLoading.Views, payloadSchema),
		Writer:      writer,
		Observer:    collector,
	}
	var migrated storage.MigrationStore
	if cfg.Migration.Enabled {
		deps.Sink = migration.NewSink(store, cfg.Migration.KeyField, payloadSchema)
		migrated = store
	}

	coordinator := pipeline.NewCoordinator(deps, pipeline.Options{
		Partitions:       partition.IDs(cfg.Pipeline.Partitions),
		BatchSize:        cfg.Pipeline.BatchSize,
		PollInterval:     cfg.Pipeline.PollInterval,
		MaxBatchAttempts: cfg.Pipeline.MaxBatchAttempts,
		ShutdownTimeout:  cfg.Pipeline.ShutdownTimeout,
	})

	slog.Info("Pipeline initialized",
		"enabled", cfg.Pipeline.Enabled,
		"partitions", cfg.Pipeline.Partitions,
		"batch_size", cfg.Pipeline.BatchSize,
		"poll_interval", cfg.Pipeline.PollInterval,
		"dedup", cfg.Pipeline.Dedup,
		"migration", cfg.Migration.Enabled,
	)

	// 6. Initialize Ingestion
	ingestionSvc := ingestion.NewService(store, cfg.Pipeline.Partitions, cfg.Server.MaxBodySizeMB, collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := pipeline.NewRunner(ctx, coordinator)

	// 7. Initialize Projection (query and control API)
	projectionSvc := projection.NewService(projection.Stores{
		Views:       store,
		Checkpoints: store,
		DeadLetters: store,
		Migrated:    migrated,
	}, cfg.ViewLoading.Views, runner)

	// 8. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), cfg.Server.Mode, cfg.Database.Type, health, metrics.Handler(registry))
	ingestionSvc.RegisterRoutes(srv.Engine)
	projectionSvc.RegisterRoutes(srv.Engine)

	// 9. Start Services
	if cfg.Pipeline.Enabled {
		runner.Start()
	} else {
		slog.Info("Pipeline disabled by config, POST /v1/pipeline/start runs it")
	}

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
		cancel()
	}

	// In-flight writes and the final checkpoint finish before storage closes.
	<-runner.Done()

	slog.Info("Shutdown complete")
}

// openStore selects the backend named by database.type. The returned
// HealthChecker is nil for the in-memory backend.
func openStore(cfg corecfg.DatabaseConfig) (storage.Store, server.HealthChecker, error) {
	switch cfg.Type {
	case "postgres":
		db, err := postgres.Open(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunMigrations(db, cfg.AutoMigrate); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		store, err := postgres.NewStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, server.PingFunc(db.PingContext), nil
	case "badger":
		store, err := badger.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case "memory":
		slog.Warn("Using in-memory storage; state is lost on exit")
		return memory.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
