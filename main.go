package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"chartpilot/config"
	"chartpilot/internal/ai/llm"
	"chartpilot/internal/aikeys"
	"chartpilot/internal/analysis"
	"chartpilot/internal/api"
	"chartpilot/internal/auth"
	"chartpilot/internal/automation"
	"chartpilot/internal/billing"
	"chartpilot/internal/cache"
	"chartpilot/internal/calendar"
	"chartpilot/internal/database"
	"chartpilot/internal/email"
	"chartpilot/internal/events"
	"chartpilot/internal/journal"
	"chartpilot/internal/logging"
	"chartpilot/internal/notification"
	"chartpilot/internal/snapshot"
	"chartpilot/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	ctx := context.Background()

	// Connect to PostgreSQL and run migrations
	db, err := database.NewDB(database.Config{
		URL:             cfg.DatabaseConfig.URL,
		MaxConns:        cfg.DatabaseConfig.MaxConns,
		MinConns:        cfg.DatabaseConfig.MinConns,
		MaxConnLifetime: time.Duration(cfg.DatabaseConfig.MaxConnLifetime) * time.Minute,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}
	logger.Info("Database connected and migrated")

	repo := database.NewRepository(db)

	// Seed the admin account when the instance is empty
	if err := auth.SeedAdminUser(ctx, db); err != nil {
		logger.WithError(err).Warn("Admin seeding skipped")
	}

	// Redis cache, optional
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing without cache")
			cacheService = nil
		} else {
			defer cacheService.Close()
			logger.Info("Redis cache connected")
		}
	}

	// Vault for provider key storage, optional
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to create vault client")
		os.Exit(1)
	}
	if cfg.VaultConfig.Enabled {
		logger.Info("Vault secrets backend enabled")
	}

	// Secrets at rest
	encryptionKey := cfg.AuthConfig.EncryptionKey
	if encryptionKey == "" {
		encryptionKey = cfg.AuthConfig.JWTSecret
		logger.Warn("No encryption key configured, deriving from JWT secret")
	}
	keyService := aikeys.NewService(repo, aikeys.NewCipher(encryptionKey), vaultClient)

	// Event bus
	eventBus := events.NewEventBus()

	// Chart snapshot capture
	snapshotService := snapshot.NewService(cfg.ChartImgConfig, repo, keyService)

	// LLM analyzer and calendar context
	analyzer := llm.NewAnalyzer(cfg.AIConfig, keyService)
	calendarService := calendar.NewService(cfg.CalendarConfig, cacheService)

	// Analysis pipeline
	analysisService := analysis.NewService(repo, snapshotService, analyzer, calendarService, eventBus)

	// Telegram and Discord alerts
	var notifyManager *notification.Manager
	if cfg.NotificationConfig.Enabled {
		notifyManager = notification.NewManager()
		if cfg.NotificationConfig.Telegram.Enabled {
			notifyManager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
				BotToken: cfg.NotificationConfig.Telegram.BotToken,
				ChatID:   cfg.NotificationConfig.Telegram.ChatID,
				Enabled:  true,
			}))
			logger.Info("Telegram notifications enabled")
		}
		if cfg.NotificationConfig.Discord.Enabled {
			notifyManager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
				WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
				Enabled:    true,
			}))
			logger.Info("Discord notifications enabled")
		}
	}

	// Journal
	journalService := journal.NewService(repo)

	// Automation
	scheduleService := automation.NewService(repo)
	runTracker := automation.NewRunTracker(zerolog.New(os.Stdout).With().Timestamp().Logger())

	var alerter automation.Alerter
	if notifyManager != nil {
		alerter = notifyManager
	}
	scheduler := automation.NewScheduler(cfg.AutomationConfig, repo, analysisService, alerter, eventBus, runTracker)
	scheduler.Start()
	defer scheduler.Stop()

	// Email delivery for verification and password reset
	emailService := email.NewService(cfg.EmailConfig)

	// Authentication
	authService := auth.NewServiceWithEmail(repo, auth.Config{
		JWTSecret:                cfg.AuthConfig.JWTSecret,
		AccessTokenDuration:      cfg.AuthConfig.AccessTokenDuration,
		RefreshTokenDuration:     cfg.AuthConfig.RefreshTokenDuration,
		MinPasswordLength:        cfg.AuthConfig.MinPasswordLength,
		MaxSessionsPerUser:       cfg.AuthConfig.MaxSessionsPerUser,
		RequireEmailVerification: cfg.AuthConfig.RequireEmailVerification,
		PasswordResetDuration:    cfg.AuthConfig.PasswordResetDuration,
	}, emailService)

	// Periodic session cleanup
	cleanupInterval := cfg.AuthConfig.SessionCleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := authService.CleanupExpiredSessions(ctx); err != nil {
					logger.WithError(err).Warn("Session cleanup failed")
				}
			case <-cleanupDone:
				return
			}
		}
	}()
	defer close(cleanupDone)

	// Stripe billing, optional
	var billingService *billing.StripeService
	if cfg.BillingConfig.Enabled {
		billingService = billing.NewStripeService(cfg.BillingConfig, repo, eventBus)
		logger.Info("Stripe billing enabled")
	}

	// HTTP API
	server := api.NewServer(cfg.ServerConfig, api.Services{
		Repo:        repo,
		EventBus:    eventBus,
		AuthService: authService,
		AIKeys:      keyService,
		Snapshots:   snapshotService,
		Analyses:    analysisService,
		Calendar:    calendarService,
		Schedules:   scheduleService,
		Tracker:     runTracker,
		Journal:     journalService,
		Billing:     billingService,
		Cache:       cacheService,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.WithError(err).Error("HTTP server stopped")
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutting down")
	}

	shutdownTimeout := time.Duration(cfg.ServerConfig.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}

	logger.Info("Shutdown complete")
}
