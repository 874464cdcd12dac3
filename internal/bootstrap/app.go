package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cassiomorais/framelink/internal/analytics"
	"github.com/cassiomorais/framelink/internal/config"
	"github.com/cassiomorais/framelink/internal/dispatch"
	"github.com/cassiomorais/framelink/internal/observability"
)

// App carries the shared runtime pieces of a framelink process.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Redis     *redis.Client
	Store     dispatch.Store
	Claimer   dispatch.Claimer
	Metrics   *observability.Metrics
	Analytics analytics.Sink
}

// New loads config and wires logging, tracing, metrics, and the relay store.
// The store is Redis-backed when redis.enabled is set and in-memory otherwise.
func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Msg("Starting")

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			go func() {
				<-ctx.Done()
				observability.Shutdown(context.Background(), tp)
			}()
			logger.Info().Msg("Tracing enabled")
		}
	}

	metrics := observability.NewMetrics(metricsNamespace, nil)
	sink := analytics.NewLogSink(observability.ComponentLogger(logger, "analytics"), metricsNamespace, nil)

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Analytics: sink,
	}

	if cfg.Redis.Enabled {
		redisClient, err := dispatch.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Msg("Connected to Redis")
		app.Redis = redisClient
		app.Store = dispatch.NewRedisStore(redisClient, cfg.Relay.ResultTTL)
		app.Claimer = dispatch.NewRedisClaimer(redisClient)
	} else {
		app.Store = dispatch.NewMemoryStore(cfg.Relay.ResultTTL, nil)
		app.Claimer = dispatch.NewMemoryClaimer(nil)
	}

	return app, nil
}

func (a *App) Close() {
	a.Store.Close()
	if a.Redis != nil {
		a.Redis.Close()
	}
}
