package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TimoDeg/margin-hunter/internal/config"
	"github.com/TimoDeg/margin-hunter/internal/ebay"
	sl "github.com/TimoDeg/margin-hunter/internal/lib/logger"
	"github.com/TimoDeg/margin-hunter/internal/rabbitmq"
	"github.com/TimoDeg/margin-hunter/internal/scraper"
	"github.com/TimoDeg/margin-hunter/internal/storage/postgres"
	"github.com/TimoDeg/margin-hunter/internal/storage/redis"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting scraper service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	postgresClient, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", sl.Err(err))
		os.Exit(1)
	}
	defer postgresClient.Close()

	// The run status lives in redis so the api service can show it; the
	// scraper still works without it.
	var mirror scraper.StatusMirror

	redisClient, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Db, cfg.Redis.DefaultTTL)
	if err != nil {
		log.Warn("redis unavailable, run status will not be mirrored", sl.Err(err))
	} else {
		defer redisClient.Close()
		mirror = redisClient
	}

	var publisher scraper.Publisher

	rabbitMQClient, err := rabbitmq.New(cfg.RabbitMQ.URL)
	if err != nil {
		log.Warn("rabbitmq unavailable, notifications will not be published", sl.Err(err))
	} else {
		defer rabbitMQClient.Close()

		if err := rabbitMQClient.DeclareQueue(cfg.RabbitMQ.QueueName); err != nil {
			log.Error("failed to declare queue", sl.Err(err))
			os.Exit(1)
		}

		publisher = rabbitmq.NewProducer(rabbitMQClient.Channel, cfg.RabbitMQ.QueueName)
	}

	runner := scraper.New(
		log,
		postgresClient,
		ebay.NewFetcher(cfg.Scraper.BaseURL, cfg.Scraper.Timeout),
		ebay.NewParser(cfg.Scraper.MaxResults),
		mirror,
		publisher,
		cfg.Scraper.ProductDelay,
		cfg.Scraper.MarginThreshold,
	)

	if cfg.Scraper.Interval <= 0 {
		runOnce(ctx, log, runner)
		return
	}

	runOnce(ctx, log, runner)

	ticker := time.NewTicker(cfg.Scraper.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("scraper service stopped")
			return
		case <-ticker.C:
			runOnce(ctx, log, runner)
		}
	}
}

func runOnce(ctx context.Context, log *slog.Logger, runner *scraper.Runner) {
	created, err := runner.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, scraper.ErrRunInProgress) {
			log.Warn("previous run still in progress, skipping")
			return
		}

		log.Error("ingestion run failed", sl.Err(err))
		return
	}

	log.Info("ingestion run finished", slog.Int("created", created))
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
