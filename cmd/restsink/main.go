// Command restsink consumes records from Kafka or Pub/Sub and delivers each
// one as an HTTP request.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/illmade-knight/go-restbridge/pkg/config"
	"github.com/illmade-knight/go-restbridge/pkg/connect"
	"github.com/illmade-knight/go-restbridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-restbridge/pkg/microservice"
	"github.com/illmade-knight/go-restbridge/pkg/observability"
	"github.com/illmade-knight/go-restbridge/pkg/restsink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "restsink.yaml", "path to the service YAML file")
	flag.Parse()

	cfg, err := config.LoadServiceFile(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
	}
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel, cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Sink connector failed")
	}
	logger.Info().Msg("Shutdown complete")
}

func run(ctx context.Context, cfg *config.ServiceConfig, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	task := restsink.NewTask(logger)
	if err := task.Start(cfg.Connector); err != nil {
		return err
	}

	consumer, closeConsumer, err := connect.NewMessageConsumer(ctx, cfg.Broker, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeConsumer(); err != nil {
			logger.Error().Err(err).Msg("Broker client close error")
		}
	}()

	opts := []connect.SinkOption{connect.WithSinkMetrics(metrics)}
	var deadLetter messagepipeline.RecordPublisher
	if cfg.Broker.DeadLetterTopic != "" {
		var closePublisher func() error
		deadLetter, closePublisher, err = connect.NewRecordPublisher(ctx, cfg.Broker, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := closePublisher(); err != nil {
				logger.Error().Err(err).Msg("Dead letter client close error")
			}
		}()
		opts = append(opts, connect.WithDeadLetter(deadLetter))
	}

	runner, err := connect.NewSinkRunner(connect.SinkRunnerConfig{
		BatchSize:       cfg.Broker.BatchSize,
		FlushInterval:   cfg.Broker.FlushInterval,
		MaxPayloadBytes: cfg.Broker.MaxPayloadBytes,
		MaxRetries:      cfg.Broker.MaxRetries,
		RetryBackoff:    cfg.Broker.RetryBackoff,
		DeadLetterTopic: cfg.Broker.DeadLetterTopic,
	}, consumer, task, logger, opts...)
	if err != nil {
		return err
	}

	srv := microservice.NewBaseServer(logger, cfg.HTTPPort, microservice.ReadyFunc(runner.Ready), reg)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	if err := runner.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown)
	defer cancel()
	if err := runner.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Sink runner stop error")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if deadLetter != nil {
		if err := deadLetter.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Dead letter publisher stop error")
		}
	}
	return nil
}
