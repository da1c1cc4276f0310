package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/unnatinarayan/garuda-notifier/internal/ack"
	"github.com/unnatinarayan/garuda-notifier/internal/cache"
	"github.com/unnatinarayan/garuda-notifier/internal/database"
	"github.com/unnatinarayan/garuda-notifier/internal/gateway"
	"github.com/unnatinarayan/garuda-notifier/internal/handlers"
	"github.com/unnatinarayan/garuda-notifier/internal/producer"
	"github.com/unnatinarayan/garuda-notifier/internal/registry"
	"github.com/unnatinarayan/garuda-notifier/internal/resolver"
	"github.com/unnatinarayan/garuda-notifier/internal/router"
	"github.com/unnatinarayan/garuda-notifier/pkg/metrics"
	"github.com/unnatinarayan/garuda-notifier/pkg/shared"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env for local runs if present
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	// Set up structured logging
	// Allow DEBUG level via environment variable for troubleshooting
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "DEBUG" || os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("Starting alert notifier",
		"http_port", cfg.HTTPPort,
		"kafka_brokers", cfg.KafkaBrokers,
		"alerts_topic", cfg.AlertsTopic,
		"consumer_group_id", cfg.ConsumerGroupID,
		"consumer_workers", cfg.ConsumerWorkers,
		"dead_letter_topic", cfg.DeadLetterTopic,
		"postgres_dsn", shared.MaskDSN(cfg.PostgresDSN),
		"redis_addr", cfg.RedisAddr,
		"cache_depth", cfg.CacheDepth,
		"email_provider", cfg.EmailProvider,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	slog.Info("Connecting to PostgreSQL database")
	db, err := database.NewDB(cfg.PostgresDSN)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		slog.Info("Tip: Start Postgres with 'docker compose up -d postgres' or ensure Postgres is running")
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Successfully connected to PostgreSQL database")

	// Initialize Redis client for the offline cache and metrics
	slog.Info("Connecting to Redis", "addr", cfg.RedisAddr)
	redisClient, err := shared.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		slog.Info("Tip: Start Redis with 'docker compose up -d redis'")
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.Info("Successfully connected to Redis")

	metricsCollector := metrics.NewCollector(metrics.ServiceName, redisClient)
	metricsCollector.Start(ctx)
	defer metricsCollector.Stop()

	streams := registry.New(
		registry.WithBufferSize(cfg.StreamBuffer),
		registry.WithHooks(metricsCollector),
	)
	offline := cache.New(redisClient,
		cache.WithDepth(cfg.CacheDepth),
		cache.WithTimeout(cfg.CacheTimeout),
	)
	live := gateway.New(streams, offline, cfg.HeartbeatInterval)

	// Out-of-band delivery is optional
	var outOfBand resolver.Dispatcher
	dispatcher := newDispatcher(ctx, cfg, metricsCollector)
	if dispatcher != nil {
		outOfBand = dispatcher
	}
	recipients := resolver.New(db, outOfBand, cfg.LookupTimeout)

	p := pipeline{
		resolver: recipients,
		cache:    offline,
		pusher:   live,
		metrics:  metricsCollector,
	}
	if cfg.DeadLetterTopic != "" {
		deadLetters, err := producer.NewProducer(cfg.KafkaBrokers, cfg.DeadLetterTopic)
		if err != nil {
			slog.Error("Failed to create dead-letter producer", "error", err)
			slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
			os.Exit(1)
		}
		defer deadLetters.Close()
		p.deadLetters = deadLetters
	}

	slog.Info("Connecting to Kafka consumers", "topic", cfg.AlertsTopic, "workers", cfg.ConsumerWorkers)
	waitWorkers, err := startWorkers(ctx, cfg, p)
	if err != nil {
		slog.Error("Failed to create Kafka consumer", "error", err)
		slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
		os.Exit(1)
	}

	h := handlers.NewHandlers(live, ack.NewHandler(offline), offline,
		handlers.WithMetricsCollector(metricsCollector),
		handlers.WithConnectionCounter(streams),
	)
	server := router.NewServer(cfg.HTTPPort, h)
	// Open streams end with the process context instead of holding up Shutdown
	server.BaseContext = func(net.Listener) context.Context { return ctx }

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal, shutting down gracefully...")
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
		exitCode = 1
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error shutting down server", "error", err)
	}
	slog.Info("HTTP server stopped")

	waitWorkers()
	slog.Info("Alert consumers stopped")

	if dispatcher != nil {
		if err := dispatcher.Close(shutdownCtx); err != nil {
			slog.Warn("Out-of-band sends did not finish", "error", err)
		}
	}

	slog.Info("Alert notifier stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
