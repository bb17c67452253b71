// Command restsource polls an HTTP endpoint and publishes each response to
// Kafka or Pub/Sub.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/illmade-knight/go-restbridge/pkg/cache"
	"github.com/illmade-knight/go-restbridge/pkg/config"
	"github.com/illmade-knight/go-restbridge/pkg/connect"
	"github.com/illmade-knight/go-restbridge/pkg/microservice"
	"github.com/illmade-knight/go-restbridge/pkg/observability"
	"github.com/illmade-knight/go-restbridge/pkg/restsource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "restsource.yaml", "path to the service YAML file")
	flag.Parse()

	cfg, err := config.LoadServiceFile(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
	}
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel, cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Source connector failed")
	}
	logger.Info().Msg("Shutdown complete")
}

func run(ctx context.Context, cfg *config.ServiceConfig, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	task := restsource.NewTask(logger)
	if err := task.Start(cfg.Connector); err != nil {
		return err
	}

	publisher, closeClient, err := connect.NewRecordPublisher(ctx, cfg.Broker, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeClient(); err != nil {
			logger.Error().Err(err).Msg("Broker client close error")
		}
	}()

	opts := []connect.SourceOption{connect.WithSourceMetrics(metrics)}
	if task.Config().Dedupe {
		digests, err := newDigestCache(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer digests.Close()
		opts = append(opts, connect.WithDeduplicator(connect.NewDeduplicator(digests)))
	}

	runner, err := connect.NewSourceRunner(task, publisher, logger, opts...)
	if err != nil {
		return err
	}

	srv := microservice.NewBaseServer(logger, cfg.HTTPPort, microservice.ReadyFunc(runner.Ready), reg)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	runErr := runner.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := publisher.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Publisher stop error")
	}
	return runErr
}

// newDigestCache uses Redis when configured so digests survive restarts.
func newDigestCache(ctx context.Context, cfg *config.ServiceConfig, logger zerolog.Logger) (cache.Cache[string, string], error) {
	if cfg.Redis == nil {
		return cache.NewInMemoryCache[string, string](0, nil), nil
	}
	rc, err := cache.NewRedisCache[string, string](ctx, &cache.RedisConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		CacheTTL:  cfg.Redis.TTL,
		KeyPrefix: cfg.ServiceName + ":",
	}, logger)
	if err != nil {
		return nil, err
	}
	return rc, nil
}
