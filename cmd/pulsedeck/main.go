package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	corecfg "github.com/pulsedeck-lab/pulsedeck/internal/core/config"
	"github.com/pulsedeck-lab/pulsedeck/internal/core/storage/postgres"
	"github.com/pulsedeck-lab/pulsedeck/internal/engine"
	"github.com/pulsedeck-lab/pulsedeck/internal/migrations"
	"github.com/pulsedeck-lab/pulsedeck/internal/push"
	"github.com/pulsedeck-lab/pulsedeck/internal/query"
	"github.com/pulsedeck-lab/pulsedeck/internal/server"
)

func main() {
	configPath := flag.String("config", "pulsedeck.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration (file + env + metric family definitions)
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"families", len(cfg.Families.List()),
		"refresh_interval", cfg.Metrics.RefreshInterval,
		"push_enabled", cfg.Push.Enabled,
	)

	// 2. Initialize Storage (PostgreSQL counter store)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize counter store", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run counter store migrations", "error", err)
		os.Exit(1)
	}

	// 3. Initialize Snapshot Engine
	builder := engine.NewBuilder(dbAdapter, cfg.Families, engine.BuilderOptions{
		RollingWindow: cfg.Metrics.RollingWindowDuration(),
		AnchorWindow:  cfg.Metrics.AnchorWindowDuration(),
		MaxLookback:   cfg.Metrics.MaxLookback(),
		FetchLimit:    cfg.Metrics.FetchLimit,
	})
	coord := engine.NewCoordinator(builder, cfg.Families, cfg.Metrics.RefreshIntervalDuration(), cfg.Metrics.CacheCapacity)

	// 4. Initialize Query API
	querySvc := query.NewService(coord, cfg.Families)

	// 5. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Families, cfg.Server.Mode)
	querySvc.RegisterRoutes(srv.Engine)

	// 6. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Record-change push channel is optional. When disabled, data freshness
	// comes from the coordinator's periodic refresh alone.
	if cfg.Push.Enabled {
		listener := push.NewListener(cfg.Push.URL, coord)
		go listener.Run(ctx)
	} else {
		slog.Info("Push notifications disabled, relying on periodic refresh")
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
	}

	querySvc.Close()
	coord.Close()

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
