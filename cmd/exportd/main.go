package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/clipforge/exportd/internal/api"
	"github.com/clipforge/exportd/internal/clip"
	"github.com/clipforge/exportd/internal/config"
	"github.com/clipforge/exportd/internal/db"
	"github.com/clipforge/exportd/internal/delivery"
	"github.com/clipforge/exportd/internal/export"
	"github.com/clipforge/exportd/internal/ffmpeg"
	"github.com/clipforge/exportd/internal/logging"
	"github.com/clipforge/exportd/internal/notify"
	"github.com/clipforge/exportd/internal/storage"
)

var Version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.WorkDir(), 0755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting clipforge exportd",
		"version", Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	clips := clip.NewRepository(database.Conn())
	jobs := export.NewStore(database.Conn())

	tools, err := ffmpeg.NewTools(cfg.FFmpegPath(), cfg.FFprobePath(), logging.WithComponent(logger, "ffmpeg"))
	if err != nil {
		return fmt.Errorf("media tools unavailable: %w", err)
	}

	var blobs storage.Store
	if cfg.StorageURL() != "" {
		blobs = storage.NewHTTPStore(cfg.StorageURL(), cfg.StorageToken(), cfg.StorageBucket(), logger)
		logger.Info("remote blob storage enabled", "base_url", cfg.StorageURL(), "bucket", cfg.StorageBucket())
	} else {
		fs, err := storage.NewFSStore(cfg.BlobDir())
		if err != nil {
			return fmt.Errorf("failed to initialize local blob store: %w", err)
		}
		blobs = fs
		logger.Info("using local blob storage", "dir", cfg.BlobDir())
	}

	var sink notify.Sink
	var ledger notify.UsageLedger
	if cfg.NotifyURL() != "" {
		client := notify.NewHTTPClient(cfg.NotifyURL(), cfg.NotifyToken(), logger)
		sink = client
		ledger = client
		logger.Info("notification endpoint enabled", "base_url", cfg.NotifyURL())
	} else {
		sink = notify.NewLogSink(logger)
		ledger = notify.NewLogLedger(logger)
	}

	orch := export.NewOrchestrator(jobs, clips, tools, blobs, sink, ledger, export.Options{
		MinClipDuration: cfg.MinClipDuration(),
		MaxClipDuration: cfg.MaxClipDuration(),
		WorkDir:         cfg.WorkDir(),
		MaxConcurrent:   cfg.MaxConcurrentExports(),
		UploadAttempts:  cfg.UploadAttempts(),
	}, logging.WithComponent(logger, "export"))

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		Exports:   orch,
		Clips:     clips,
		Tools:     tools,
		Blobs:     blobs,
		Media:     delivery.NewStreamer(logger),
		Logger:    logger,
		StartTime: startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("export drain incomplete", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
