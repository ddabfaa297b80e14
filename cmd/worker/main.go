package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lettings_triage_backend/internal/compliance"
	"lettings_triage_backend/internal/conversation"
	"lettings_triage_backend/internal/jobs"
	"lettings_triage_backend/internal/messaging"
	"lettings_triage_backend/internal/tenants"
	"lettings_triage_backend/migrations"
	"lettings_triage_backend/platform/config"
	"lettings_triage_backend/platform/db"
	"lettings_triage_backend/platform/logger"
	"lettings_triage_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting job worker",
		"env", cfg.Env,
		"worker_id", cfg.GetWorkerID(),
		"poll_interval", cfg.GetWorkerPollInterval().String(),
		"batch_size", cfg.GetWorkerBatchSize(),
		"run_once", cfg.GetWorkerRunOnce(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS, ".")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}

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
	val := validator.New()

	tenantRepo := tenants.New(pool)
	messageRepo := messaging.NewRepository(pool)
	conversationRepo := conversation.NewRepository(pool)
	documentRepo := compliance.NewRepository(pool)
	jobRepo := jobs.NewRepository(pool)

	executor := jobs.NewExecutor(
		jobRepo, conversationRepo, tenantRepo, documentRepo, messageRepo, sender, val, log)

	worker := jobs.NewWorker(jobRepo, executor, jobs.WorkerOptions{
		WorkerID:     cfg.GetWorkerID(),
		PollInterval: cfg.GetWorkerPollInterval(),
		BatchSize:    cfg.GetWorkerBatchSize(),
		LeaseTimeout: cfg.GetJobLeaseTimeout(),
		RetryDelay:   cfg.GetJobRetryDelay(),
		RunOnce:      cfg.GetWorkerRunOnce(),
	}, log)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped with error", "error", err)
		panic("worker stopped with error: " + err.Error())
	}
	log.Info("worker stopped")
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
