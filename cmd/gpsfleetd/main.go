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
	"github.com/patrickmn/go-cache"

	"gps-fleet-backend/config"
	"gps-fleet-backend/internal/api"
	"gps-fleet-backend/internal/db"
	"gps-fleet-backend/internal/derive"
	"gps-fleet-backend/internal/gpsbuddy"
	"gps-fleet-backend/internal/notification"
	"gps-fleet-backend/internal/refresh"
	"gps-fleet-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "gps-fleet-backend ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Absent upstream credentials are a hard precondition failure, not a
	// silent no-op.
	if err := cfg.GPSBuddy.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	// Telemetry client with a shared session-token cache
	tokenCache := cache.New(cache.NoExpiration, 5*time.Minute)
	client := gpsbuddy.NewClient(&cfg.GPSBuddy, tokenCache)

	// Alert delivery
	var sink notification.Sink
	if cfg.Alerts.WebhookURL != "" {
		sink = notification.NewWebhookSink(cfg.Alerts.WebhookURL)
	} else {
		logger.Println("no alert webhook configured; alerts will be logged")
		sink = &notification.LogSink{}
	}
	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions, sink, cfg.Alerts.Channel)

	// Derived-signal engine and refresh orchestrator
	monitor := derive.NewMonitor(&cfg.Alerts)
	refreshSvc := refresh.NewService(cfg, client, appStore, monitor, workerPool)
	go refreshSvc.Run(ctx)

	// Initialize router
	router := api.NewRouter(appStore, &webpushOptions, cfg)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
