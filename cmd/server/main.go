package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/chatmimic/retrieval/internal/api"
	"github.com/chatmimic/retrieval/internal/config"
	"github.com/chatmimic/retrieval/pkg/database"
	"github.com/chatmimic/retrieval/pkg/embedding"
	"github.com/chatmimic/retrieval/pkg/observability"
	"github.com/chatmimic/retrieval/pkg/retrieval"

	// PostgreSQL driver
	_ "github.com/lib/pq"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := observability.NewLogger("server")
	metrics := observability.NewMetricsClient()
	defer func() {
		if err := metrics.Close(); err != nil {
			logger.Warn("Failed to close metrics client", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", map[string]interface{}{
			"error": err.Error(),
		})
	}

	db, err := database.Connect(ctx, cfg.Database, logger.WithPrefix("database"))
	if err != nil {
		logger.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close database", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	vectorDB, err := database.NewVectorDatabase(db, cfg.Vector, logger.WithPrefix("vector"))
	if err != nil {
		logger.Fatal("Failed to create vector database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := vectorDB.Initialize(ctx); err != nil {
		logger.Fatal("Failed to initialize vector database", map[string]interface{}{
			"error": err.Error(),
		})
	}

	provider, err := buildProvider(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Fatal("Failed to build embedding provider", map[string]interface{}{
			"error":    err.Error(),
			"provider": cfg.Embedding.Provider,
		})
	}

	store := database.NewEmbeddingStore(db, logger.WithPrefix("store"), metrics)

	service, err := retrieval.NewService(store, provider, vectorDB.Dimensions(), cfg.Retrieval, logger.WithPrefix("retrieval"), metrics)
	if err != nil {
		logger.Fatal("Failed to create retrieval service", map[string]interface{}{
			"error": err.Error(),
		})
	}

	server := api.NewServer(cfg.API, service, vectorDB, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("HTTP server failed", map[string]interface{}{
			"error": err.Error(),
		})
	case sig := <-sigCh:
		logger.Info("Shutting down", map[string]interface{}{
			"signal": sig.String(),
		})
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// buildProvider assembles the embedding provider chain: the configured
// live provider, wrapped by the circuit breaker and rate limiter, and
// finally the cache.
func buildProvider(ctx context.Context, cfg *config.Config, logger observability.Logger, metrics observability.MetricsClient) (embedding.Provider, error) {
	var inner embedding.Provider
	var err error

	switch cfg.Embedding.Provider {
	case "openai":
		inner, err = embedding.NewOpenAIProvider(cfg.Embedding.OpenAI.APIKey, cfg.Embedding.OpenAI.Model)
	case "bedrock":
		inner, err = embedding.NewBedrockProvider(ctx, cfg.Embedding.Bedrock.Region, cfg.Embedding.Bedrock.Model)
	case "deterministic":
		inner, err = embedding.NewDeterministicProvider(cfg.Vector.Dimensions)
	}
	if err != nil {
		return nil, err
	}

	providerLogger := logger.WithPrefix("provider")

	// The deterministic provider is local; it needs neither breaker
	// nor cache.
	if cfg.Embedding.Provider == "deterministic" {
		return inner, nil
	}

	guarded := embedding.NewGuardedProvider(inner, cfg.Embedding.Breaker, providerLogger)

	if !cfg.Embedding.Cache.Enabled {
		return guarded, nil
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			providerLogger.Warn("Redis unreachable; embedding cache degrades to local LRU", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return embedding.NewCachedProvider(guarded, redisClient, cfg.Embedding.Cache, providerLogger, metrics)
}
