// Package user wires the users resource family into a mountable router.
package user

import (
	"log/slog"
	"net/http"
	"time"

	"erp/internal/platform/metrics"
	"erp/internal/platform/middleware"
	"erp/internal/platform/router"
	"erp/internal/user/handler"
	"erp/internal/user/service"
	"erp/pkg/platform/middleware/auth"
	"erp/pkg/platform/middleware/metadata"
	"erp/pkg/platform/middleware/request"
	"erp/pkg/platform/middleware/requesttime"
)

// Service exposes the user lifecycle orchestration.
type Service = service.Service

// DefaultPrefix is where the users mount lives unless configured otherwise.
const DefaultPrefix = "/users"

// MountConfig carries what the users mount needs from the host process.
type MountConfig struct {
	Prefix         string
	AdminRole      string
	RequestTimeout time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Validator      auth.JWTValidator
}

// Controllers returns the users controllers in registration order.
func Controllers(svc handler.Service, logger *slog.Logger, adminRole string) router.ControllerList {
	return router.ControllerList{
		handler.New(svc, logger),
		handler.NewLifecycle(svc, logger, adminRole),
		handler.NewEvents(svc, logger),
	}
}

// NewMount builds the users mount. Every route requires a valid bearer token,
// so a missing validator panics.
func NewMount(svc handler.Service, cfg MountConfig) *router.Mount {
	if cfg.Validator == nil {
		panic("user: JWT validator is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.AdminRole == "" {
		cfg.AdminRole = "admin"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mws := []func(http.Handler) http.Handler{
		request.RequestID,
		middleware.Recovery(cfg.Logger),
		middleware.Tracing,
		middleware.Logger(cfg.Logger),
		middleware.Latency(cfg.Metrics),
		requesttime.Middleware,
		metadata.ClientMetadata,
	}
	if cfg.RequestTimeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.RequestTimeout))
	}
	mws = append(mws,
		middleware.ContentTypeJSON,
		auth.RequireAuth(cfg.Validator, cfg.Logger),
	)

	return router.NewMount("users", cfg.Prefix,
		Controllers(svc, cfg.Logger, cfg.AdminRole),
		router.WithLogger(cfg.Logger),
		router.WithMetrics(cfg.Metrics),
		router.WithMiddlewares(mws...),
	)
}
