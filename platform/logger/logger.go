// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// TenantIDKey is the context key for tenant ID
	TenantIDKey contextKey = "tenant_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with request_id and tenant_id extracted from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok && tenantID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("tenant_id", tenantID))}
	}

	return newLogger
}

// WithTenant returns a logger with the tenant ID attached.
func (l *Logger) WithTenant(tenantID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("tenant_id", tenantID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// SmsSent logs an outbound SMS send.
func (l *Logger) SmsSent(provider, from, to, providerMessageID string) {
	l.Info("sms_sent",
		slog.String("provider", provider),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("provider_message_id", providerMessageID),
	)
}

// JobFinalized logs a job reaching a terminal state.
func (l *Logger) JobFinalized(jobID, jobType, outcome string, attempts int) {
	l.Info("job_finalized",
		slog.String("job_id", jobID),
		slog.String("job_type", jobType),
		slog.String("outcome", outcome),
		slog.Int("attempts", attempts),
	)
}

// WorkerCycle logs the stats of one worker poll cycle.
func (l *Logger) WorkerCycle(workerID string, swept, locked, sent, canceled, retried, failed int) {
	l.Info("worker_cycle",
		slog.String("worker_id", workerID),
		slog.Int("swept", swept),
		slog.Int("locked", locked),
		slog.Int("sent", sent),
		slog.Int("canceled", canceled),
		slog.Int("retried", retried),
		slog.Int("failed", failed),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}
