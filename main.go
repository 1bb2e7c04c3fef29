package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/giygas/drug-predictor-api/artifacts"
	"github.com/giygas/drug-predictor-api/config"
	"github.com/giygas/drug-predictor-api/data"
	"github.com/giygas/drug-predictor-api/logging"
	"github.com/giygas/drug-predictor-api/scheduler"
	"github.com/giygas/drug-predictor-api/server"
)

func main() {
	// A missing .env is fine, the environment may already be set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "Failed to read .env:", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := logging.Init(logging.Options{
		Dir:            cfg.LogDir,
		Level:          level,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialise logging:", err)
		os.Exit(1)
	}
	defer logging.Close()

	if err := run(cfg); err != nil {
		logging.Error("Server stopped with error", "error", err)
		logging.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	src, err := cfg.NewArtifactSource()
	if err != nil {
		return err
	}
	if m, ok := src.(*artifacts.MinIOSource); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := m.Ping(ctx); err != nil {
			logging.Warn("Artifact bucket is not reachable", "endpoint", cfg.MinIOEndpoint, "error", err)
		}
		cancel()
	}

	store := data.NewDataContainer()
	store.SetServerStartTime(time.Now())

	loader := artifacts.NewLoader(src, cfg.ArtifactNames())
	sched := scheduler.NewScheduler(store, loader, cfg.ArtifactRefreshInterval)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to load artifacts from %s: %w", loader.Describe(), err)
	}
	defer sched.Stop()

	srv := server.NewServer(cfg, store)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logging.Info("Received shutdown signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
