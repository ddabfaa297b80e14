package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lettings_triage_backend/internal/compliance"
	"lettings_triage_backend/internal/conversation"
	"lettings_triage_backend/internal/extraction"
	apphttp "lettings_triage_backend/internal/http"
	"lettings_triage_backend/internal/http/router"
	"lettings_triage_backend/internal/messaging"
	"lettings_triage_backend/internal/tenants"
	"lettings_triage_backend/internal/voice"
	"lettings_triage_backend/internal/webhook"
	"lettings_triage_backend/migrations"
	"lettings_triage_backend/platform/config"
	"lettings_triage_backend/platform/db"
	"lettings_triage_backend/platform/logger"

	jobspkg "lettings_triage_backend/internal/jobs"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting api server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS, ".")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	sender := buildSender(cfg, log)
	extractor := buildExtractor(cfg, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	tenantRepo := tenants.New(pool)
	messageRepo := messaging.NewRepository(pool)
	conversationRepo := conversation.NewRepository(pool)
	voiceRepo := voice.NewRepository(pool)
	jobRepo := jobspkg.NewRepository(pool)

	conversationService := conversation.NewService(
		conversationRepo, messageRepo, jobRepo, sender, extractor, log)
	voiceService := voice.NewService(
		voiceRepo, conversationRepo, jobRepo, messageRepo, sender, log)

	webhookModule := webhook.NewModule(tenantRepo, conversationService, voiceService, log)
	complianceModule := compliance.NewModule(pool, tenantRepo, jobRepo, log)
	messagingModule := messaging.NewModule(messageRepo)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: db.NewPoolAdapter(pool),
		Modules: []apphttp.Module{
			webhookModule,
			complianceModule,
			messagingModule,
		},
	}

	engine := router.New(app)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
}

func buildSender(cfg *config.Config, log *logger.Logger) messaging.Sender {
	if cfg.IsMockSmsEnabled() {
		log.Warn("sms gateway running in mock mode")
		return messaging.NewRateLimitedSender(messaging.NewMockSender(log), cfg.GetSmsSendRatePerSecond())
	}

	twilioSender, err := messaging.NewTwilioSender(messaging.TwilioConfig{
		AccountSID: cfg.GetTwilioAccountSID(),
		AuthToken:  cfg.GetTwilioAuthToken(),
		BaseURL:    cfg.GetTwilioAPIBaseURL(),
	}, log)
	if err != nil {
		log.Error("failed to initialize twilio sender", "error", err)
		panic("failed to initialize twilio sender: " + err.Error())
	}
	return messaging.NewRateLimitedSender(twilioSender, cfg.GetSmsSendRatePerSecond())
}

func buildExtractor(cfg *config.Config, log *logger.Logger) extraction.Extractor {
	if !cfg.IsExtractionEnabled() {
		log.Info("nlp extraction disabled, using heuristic extractor")
		return extraction.NewHeuristicExtractor()
	}

	return extraction.NewClient(extraction.ClientConfig{
		BaseURL: cfg.GetExtractionAPIURL(),
		APIKey:  cfg.GetExtractionAPIKey(),
		Model:   cfg.GetExtractionModel(),
	}, log)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
