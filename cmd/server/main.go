package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/rpattn/metacat/internal/api"
	"github.com/rpattn/metacat/internal/catalog"
	"github.com/rpattn/metacat/internal/config"
	"github.com/rpattn/metacat/internal/db"
	"github.com/rpattn/metacat/internal/entities"
	"github.com/rpattn/metacat/internal/events"
	"github.com/rpattn/metacat/internal/middleware"
	"github.com/rpattn/metacat/internal/repository"
	"github.com/rpattn/metacat/internal/search"
	"github.com/rpattn/metacat/internal/secrets"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.Database, "./migrations", logger); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	stores := repository.NewStores(conn.Pool)
	txManager := repository.NewTxManager(conn.Pool)
	finder := catalog.NewFinder(stores.Entities)

	secretBackend, err := secrets.NewAESBackend(cfg.Secrets.Key, logger)
	if err != nil {
		log.Fatalf("Failed to initialize secrets backend: %v", err)
	}

	registry, err := catalog.NewRegistry(
		entities.NewChartHandler(finder),
		entities.NewKPIHandler(finder),
		entities.NewServiceHandler(entities.TypeDashboardService, secretBackend),
		entities.NewServiceHandler(entities.TypeStorageService, secretBackend),
	)
	if err != nil {
		log.Fatalf("Failed to build entity registry: %v", err)
	}

	sinks := []events.Sink{events.NewLogSink(logger)}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			log.Fatalf("Failed to create kafka publisher: %v", err)
		}
		defer func() {
			if err := kafka.Close(); err != nil {
				logger.Warn("failed to close kafka publisher", "error", err)
			}
		}()
		sinks = append(sinks, kafka)
	}

	engine := catalog.NewEngine(stores, txManager, registry, events.NewFanout(sinks...), logger)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed to close redis client", "error", err)
		}
	}()

	processor := search.NewProcessor(search.NewRedisIndexClient(redisClient), logger)
	reindexer := search.NewReindexer(stores.Entities, processor, 100, logger)

	server := api.NewServer(engine, reindexer, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "PUT", "PATCH", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})
	handler := corsHandler.Handler(middleware.LoggingMiddleware(logger)(server.Routes()))

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting catalog server", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server exited")
}
