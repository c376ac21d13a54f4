package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TimoDeg/margin-hunter/internal/config"
	"github.com/TimoDeg/margin-hunter/internal/ebay"
	notificationsStatus "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/notifications/status"
	testNotification "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/notifications/test"
	createOffer "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/offers/create"
	getOffer "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/offers/get_by_id"
	offerHistory "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/offers/history"
	listOffers "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/offers/list"
	updateOfferStatus "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/offers/update_status"
	createProduct "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/products/create"
	deleteProduct "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/products/delete"
	getProduct "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/products/get_by_id"
	listProducts "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/products/list"
	setReference "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/products/reference"
	updateProduct "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/products/update"
	runScraper "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/scraper/run"
	scraperStatus "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/scraper/status"
	sl "github.com/TimoDeg/margin-hunter/internal/lib/logger"
	"github.com/TimoDeg/margin-hunter/internal/notifier"
	"github.com/TimoDeg/margin-hunter/internal/products"
	"github.com/TimoDeg/margin-hunter/internal/rabbitmq"
	"github.com/TimoDeg/margin-hunter/internal/scraper"
	"github.com/TimoDeg/margin-hunter/internal/storage/postgres"
	"github.com/TimoDeg/margin-hunter/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	validator "github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting api service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	redisClient, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Db, cfg.Redis.DefaultTTL)
	if err != nil {
		log.Error("failed to connect redis", sl.Err(err))
		os.Exit(1)
	}
	defer redisClient.Close()

	postgresClient, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", sl.Err(err))
		os.Exit(1)
	}
	defer postgresClient.Close()

	rabbitMQClient, err := rabbitmq.New(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("failed to connect rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer rabbitMQClient.Close()

	if err := rabbitMQClient.DeclareQueue(cfg.RabbitMQ.QueueName); err != nil {
		log.Error("failed to declare queue", sl.Err(err))
		os.Exit(1)
	}

	rabbitMQProducer := rabbitmq.NewProducer(
		rabbitMQClient.Channel,
		cfg.RabbitMQ.QueueName,
	)

	prodOP := products.New(postgresClient, redisClient)

	runner := scraper.New(
		log,
		postgresClient,
		ebay.NewFetcher(cfg.Scraper.BaseURL, cfg.Scraper.Timeout),
		ebay.NewParser(cfg.Scraper.MaxResults),
		redisClient,
		rabbitMQProducer,
		cfg.Scraper.ProductDelay,
		cfg.Scraper.MarginThreshold,
	)

	notifierClient := notifier.NewClient(cfg.Notifier.URL, cfg.HTTPServer.Timeout)

	telegramConfigured := cfg.Telegram.BotToken != "" && len(cfg.Telegram.ChatIDList()) > 0

	requestValidator := validator.New()

	router := setupRouter(
		log,
		requestValidator,
		postgresClient,
		redisClient,
		prodOP,
		runner,
		notifierClient,
		telegramConfigured,
	)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("http server listening", slog.String("address", cfg.HTTPServer.Address))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", sl.Err(err))
	}

	log.Info("api service stopped")
}

func setupRouter(
	log *slog.Logger,
	validate *validator.Validate,
	postgresClient *postgres.PostgresRepo,
	redisClient *redis.RedisRepo,
	prodOP *products.Operator,
	runner *scraper.Runner,
	notifierClient *notifier.Client,
	telegramConfigured bool,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Post("/", createProduct.New(log, prodOP, validate))
			r.Get("/", listProducts.New(log, postgresClient))
			r.Get("/{id}", getProduct.New(log, prodOP))
			r.Put("/{id}", updateProduct.New(log, prodOP))
			r.Delete("/{id}", deleteProduct.New(log, prodOP))
			r.Put("/{id}/reference", setReference.New(log, postgresClient, validate))
		})

		r.Route("/offers", func(r chi.Router) {
			r.Get("/", listOffers.New(log, postgresClient))
			r.Post("/", createOffer.New(log, postgresClient, validate))
			r.Get("/{id}", getOffer.New(log, postgresClient))
			r.Put("/{id}/status", updateOfferStatus.New(log, postgresClient, validate))
			r.Get("/{id}/history", offerHistory.New(log, postgresClient))
		})

		r.Route("/scraper", func(r chi.Router) {
			r.Post("/run-once", runScraper.New(log, runner))
			r.Get("/status", scraperStatus.New(log, runner, redisClient))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/status", notificationsStatus.New(log, telegramConfigured, notifierClient))
			r.Post("/test", testNotification.New(log, telegramConfigured, notifierClient))
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
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
