package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scholarfin/be-fund-requests/internal/channel"
	"github.com/scholarfin/be-fund-requests/internal/client"
	"github.com/scholarfin/be-fund-requests/internal/config"
	"github.com/scholarfin/be-fund-requests/internal/database"
	"github.com/scholarfin/be-fund-requests/internal/handler"
	"github.com/scholarfin/be-fund-requests/internal/logger"
	"github.com/scholarfin/be-fund-requests/internal/notify"
	"github.com/scholarfin/be-fund-requests/internal/repository"
	"github.com/scholarfin/be-fund-requests/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Fund Requests Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	var store repository.Store
	if getEnv("STORAGE", "postgres") == "memory" {
		store = repository.NewMemoryStore()
		log.Warn().Msg("Using in-memory store; data will not survive a restart")
	} else {
		db, err := database.New(ctx, database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Database:    cfg.Database.Database,
			SSLMode:     cfg.Database.SSLMode,
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		store = repository.NewPostgresStore(db)
		log.Info().Msg("Database connection established")
	}

	// Subscription hub: local websocket fan-out, also a channel transport.
	hub := channel.NewHub(log)
	go hub.Heartbeat(ctx, 30*time.Second)

	// Channel transports. Without a broker the hub is the delivery path;
	// with one, events go to the broker and come back through the relay so
	// every instance's local subscribers see them.
	transports := []notify.ChannelTransport{hub}
	relay := notify.NewRelay(hub)

	switch cfg.Notify.Transport {
	case "nats":
		nt, err := notify.NewNATSTransport(cfg.Notify.NatsURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nt.Close()
		transports = []notify.ChannelTransport{nt}
		if _, err := nt.SubscribeAll(func(ch string, payload []byte) {
			relay.Handle(ch, payload)
		}); err != nil {
			log.Fatal().Err(err).Msg("Failed to subscribe to NATS channels")
		}
		log.Info().Str("url", cfg.Notify.NatsURL).Msg("NATS transport initialized")
	case "redis":
		rt, err := notify.NewRedisTransport(ctx, cfg.Notify.RedisAddr, cfg.Notify.RedisPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rt.Close()
		transports = []notify.ChannelTransport{rt}
		rt.SubscribeAll(ctx, func(ch string, payload []byte) {
			relay.Handle(ch, payload)
		})
		log.Info().Str("addr", cfg.Notify.RedisAddr).Msg("Redis transport initialized")
	default:
		log.Info().Msg("In-process channel transport only")
	}

	// Delivery adapters
	adapters := []notify.DeliveryAdapter{}
	if mailURL := getEnv("MAIL_RELAY_URL", ""); mailURL != "" {
		adapters = append(adapters, notify.NewMailAdapter(client.NewMailRelayClient(mailURL)))
		log.Info().Str("mail_relay", mailURL).Msg("Mail adapter initialized")
	} else {
		adapters = append(adapters, notify.NewLogAdapter(log))
	}

	// Background delivery
	worker := notify.NewWorker(notify.WorkerConfig{
		QueueSize:   cfg.Notify.QueueSize,
		Workers:     cfg.Notify.Workers,
		MaxAttempts: cfg.Notify.MaxAttempts,
		RetryBase:   cfg.Notify.RetryBase,
	}, log)
	worker.Start()
	defer worker.Stop()

	publisher := notify.NewPublisher(transports, adapters, worker, log)

	// Role directory
	var directory service.RoleDirectory
	if dirURL := getEnv("ROLE_DIRECTORY_URL", ""); dirURL != "" {
		directory = client.NewRoleDirectoryClient(dirURL)
		log.Info().Str("role_directory", dirURL).Msg("Role directory client initialized")
	} else {
		directory = client.NewStaticRoleDirectory(nil)
		log.Warn().Msg("No role directory configured; all actors resolve to no roles")
	}

	// Services
	requests := service.NewRequestService(store, publisher, log)
	engine := service.NewTransitionEngine(store, publisher, log)

	httpHandler := handler.NewHTTPHandler(requests, engine, directory, hub, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(cfg.Auth.JWTSecret, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
