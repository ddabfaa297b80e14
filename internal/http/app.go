package http

import (
	"context"

	"lettings_triage_backend/platform/config"
	"lettings_triage_backend/platform/logger"
)

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the fully initialized application dependencies. Populated by
// main.go (the composition root) and passed to the router.
type App struct {
	Config  config.HTTPConfig
	Logger  *logger.Logger
	Health  HealthChecker
	Modules []Module
}
