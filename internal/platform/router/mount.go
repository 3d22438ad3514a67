package router

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"erp/internal/platform/metrics"
)

// Mount is the singleton router of one resource family. The router is built
// on first use and reused afterwards; the parent application decides where
// it is attached.
type Mount struct {
	name        string
	prefix      string
	controllers ControllerList
	middlewares []func(http.Handler) http.Handler
	logger      *slog.Logger
	metrics     *metrics.Metrics

	router func() chi.Router
}

// MountOption configures a Mount.
type MountOption func(*Mount)

func WithLogger(logger *slog.Logger) MountOption {
	return func(m *Mount) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) MountOption {
	return func(m *Mount) {
		m.metrics = mt
	}
}

// WithMiddlewares applies mws to every route of the mount, ahead of the
// controllers' own middlewares.
func WithMiddlewares(mws ...func(http.Handler) http.Handler) MountOption {
	return func(m *Mount) {
		m.middlewares = append(m.middlewares, mws...)
	}
}

// NewMount prepares a mount. Nothing is built until Router or Attach is called.
func NewMount(name, prefix string, controllers ControllerList, opts ...MountOption) *Mount {
	m := &Mount{
		name:        name,
		prefix:      prefix,
		controllers: controllers,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.router = sync.OnceValue(m.build)
	return m
}

func (m *Mount) Name() string   { return m.name }
func (m *Mount) Prefix() string { return m.prefix }

// Router builds the router on the first call and returns the same instance on
// every call. If a controller panics while registering, the panic reaches the
// first caller and every later call panics with the same value; no caller ever
// gets a partially built router.
func (m *Mount) Router() chi.Router {
	return m.router()
}

func (m *Mount) build() chi.Router {
	router := Build(ControllerFunc(func(r chi.Router) {
		if len(m.middlewares) > 0 {
			r.Use(m.middlewares...)
		}
		m.controllers.Register(r)
	}))

	routes := Patterns(router)
	m.logger.Info("router mounted",
		"mount", m.name,
		"prefix", m.prefix,
		"routes", len(routes),
	)
	for _, p := range routes {
		m.logger.Debug("route registered", "mount", m.name, "route", p)
	}
	if m.metrics != nil {
		m.metrics.SetMountedRoutes(m.name, len(routes))
	}
	return router
}

// Attach mounts the router under the prefix on parent.
func (m *Mount) Attach(parent chi.Router) {
	parent.Mount(m.prefix, m.Router())
}
