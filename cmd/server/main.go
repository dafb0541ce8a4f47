package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/referral-triage-server/internal/alerting"
	"github.com/referral-triage-server/internal/api"
	"github.com/referral-triage-server/internal/audit"
	"github.com/referral-triage-server/internal/cache"
	"github.com/referral-triage-server/internal/config"
	"github.com/referral-triage-server/internal/database"
	"github.com/referral-triage-server/internal/feedback"
	"github.com/referral-triage-server/internal/notify"
	"github.com/referral-triage-server/internal/repository"
	"github.com/referral-triage-server/internal/scheduler"
	"github.com/referral-triage-server/internal/service"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting referral triage server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database pool and migrations.
	db, err := database.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	databaseURL := database.URL(cfg.Database)
	migrationRunner, err := database.NewMigrationRunner(databaseURL, cfg.Database.MigrationsPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create migration runner")
	}
	if err := migrationRunner.Up(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}
	migrationRunner.Close()

	// Stores.
	auditStore, err := audit.NewPostgresStoreFromURL(databaseURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open audit store")
	}
	defer auditStore.Close()

	feedbackStore, err := feedback.NewPostgresStoreFromURL(databaseURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open feedback store")
	}
	defer feedbackStore.Close()

	weightRepo := repository.NewWeightRepository(db.Pool, logger)
	alertRepo := repository.NewAlertRepository(db.Pool, logger)
	referralRepo := repository.NewReferralRepository(db.Pool, logger)
	userRepo := repository.NewUserRepository(db.Pool, logger)

	// Optional Redis snapshot of the active weight vector.
	var weightsCache service.WeightsCache
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewWeightCache(cfg.Cache)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisCache.Close()
		weightsCache = redisCache
	}

	weights := service.NewWeights(logger, weightRepo, weightsCache)
	if err := weights.Bootstrap(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to bootstrap weight vector")
	}

	classifier, err := service.NewClassifierService(logger, weights, auditStore, cfg.Triage)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create classifier")
	}
	classifier.WithReferralRecorder(referralRepo)

	feedbackService := service.NewFeedbackService(logger, classifier, feedbackStore)
	tuner := service.NewWeightTuner(logger, feedbackStore, auditStore, weights, cfg.Tuning)

	// Notification fan-out.
	wsHub := notify.NewWebSocketHub(logger)
	channels := []notify.Channel{wsHub}
	if cfg.Notify.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookChannel("webhook", cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout))
	}
	dispatcher := notify.NewDispatcher(logger, cfg.Notify, channels...)

	engine := alerting.NewEngine(logger, alertRepo, referralRepo, userRepo, dispatcher, cfg.Alerts)

	// Scheduled jobs.
	jobs, err := scheduler.New(logger, tuner, engine, cfg.Tuning.Schedule, cfg.Alerts.SweepSchedule)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create scheduler")
	}
	jobs.Start()
	defer jobs.Stop()

	server := api.NewServer(logger, cfg, api.Deps{
		Classifier: classifier,
		Feedback:   feedbackService,
		Tuner:      tuner,
		Weights:    weights,
		Alerts:     engine,
		AlertStore: alertRepo,
		Audit:      auditStore,
		Referrals:  referralRepo,
		WSHub:      wsHub,
		DBHealth:   db.Health,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

func newLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}
