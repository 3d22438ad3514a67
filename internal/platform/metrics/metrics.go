package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP platform metrics.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	MountedRoutes   *prometheus.GaugeVec
}

// New creates and registers the platform metrics on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "erp_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route pattern",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
		MountedRoutes: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "erp_mounted_routes",
			Help: "Number of routes registered on each mounted router",
		}, []string{"mount"}),
	}
}

// ObserveRequest records one request. Call with time.Now() taken at the start.
func (m *Metrics) ObserveRequest(method, route, status string, start time.Time) {
	m.RequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
}

// SetMountedRoutes records the route count of a built mount.
func (m *Metrics) SetMountedRoutes(mount string, n int) {
	m.MountedRoutes.WithLabelValues(mount).Set(float64(n))
}
