package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"factory-status-backend/config"
	"factory-status-backend/internal/api"
	"factory-status-backend/internal/archive"
	"factory-status-backend/internal/broadcast"
	"factory-status-backend/internal/db"
	"factory-status-backend/internal/ingest"
	"factory-status-backend/internal/notification"
	"factory-status-backend/internal/parse"
	"factory-status-backend/internal/retention"
	"factory-status-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "factory-backend ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	normalizer := parse.NewNormalizer(cfg.Ingest.UTCOffsetHours)
	hub := broadcast.NewHub(cfg.Broadcast.MaxSubscribers, cfg.Broadcast.SubscriberBuffer)

	// Push notifications are optional; without VAPID keys the worker pool is
	// not started and ingestion skips dispatching.
	var webpushOptions *webpush.Options
	var workerPool *notification.WorkerPool
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		workerPool.Start(ctx)
		logger.Printf("push notification worker pool started (size %d)", cfg.WorkerPool.Size)
	} else {
		logger.Println("VAPID keys are not configured; push notifications disabled")
	}

	ingestSvc := ingest.NewService(appStore, normalizer, hub, workerPool, cfg.Ingest.ChunkSize)

	if cfg.Retention.Enabled {
		writer, err := newArchiveWriter(ctx, &cfg.Retention.Archive)
		if err != nil {
			logger.Fatalf("failed to initialize archive backend: %v", err)
		}
		sweeper, err := retention.NewSweeper(&cfg.Retention, appStore, writer)
		if err != nil {
			logger.Fatalf("failed to initialize retention sweeper: %v", err)
		}
		go sweeper.Run(ctx)
	} else {
		logger.Println("retention sweeper is disabled")
	}

	router := api.NewRouter(&cfg.Server, appStore, ingestSvc, normalizer, webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}

func newArchiveWriter(ctx context.Context, cfg *config.ArchiveConfig) (archive.Writer, error) {
	switch cfg.Backend {
	case "", "file":
		return archive.NewFileWriter(cfg.Dir)
	case "s3":
		return archive.NewS3Writer(ctx, &cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported archive backend %q", cfg.Backend)
	}
}
