package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	jwttoken "erp/internal/jwt_token"
	"erp/internal/platform/config"
	"erp/internal/platform/kafka"
	"erp/internal/platform/metrics"
	"erp/internal/platform/postgres"
	platformredis "erp/internal/platform/redis"
	"erp/internal/platform/router"
	"erp/internal/user"
	usermetrics "erp/internal/user/metrics"
	"erp/internal/user/service"
	userstore "erp/internal/user/store"
	audit "erp/pkg/platform/audit"
	"erp/pkg/platform/audit/publisher"
	kafkasink "erp/pkg/platform/audit/publishers/kafka"
	auditmemory "erp/pkg/platform/audit/store/memory"
	auditpostgres "erp/pkg/platform/audit/store/postgres"
	"erp/pkg/platform/circuit"
	"erp/pkg/platform/httputil"
	"erp/pkg/platform/tx"
)

// infra holds the optional backing services. A nil field means the
// corresponding URL was not configured.
type infra struct {
	db    *sql.DB
	redis *platformredis.Client
	kafka *kgo.Client
}

func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	deps := &infra{}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("postgres stores enabled")
	}
	deps.db = db

	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		deps.Close()
		return nil, err
	}
	if rc != nil {
		log.Info("redis user cache enabled", "ttl", cfg.Redis.CacheTTL.String())
	}
	deps.redis = rc

	kc, err := kafka.New(cfg.Kafka)
	if err != nil {
		deps.Close()
		return nil, err
	}
	if kc != nil {
		if err := kafka.EnsureTopic(ctx, kc, cfg.Kafka); err != nil {
			kc.Close()
			deps.Close()
			return nil, err
		}
		log.Info("kafka audit fan-out enabled", "topic", cfg.Kafka.AuditTopic)
	}
	deps.kafka = kc

	return deps, nil
}

func (d *infra) Close() {
	if d.kafka != nil {
		d.kafka.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
}

type app struct {
	router    http.Handler
	publisher *publisher.Publisher
}

func buildApp(cfg config.Server, deps *infra, log *slog.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	platformMetrics := metrics.New(reg)

	var (
		users      userstore.Store
		auditStore audit.Store
		svcOpts    = []service.Option{
			service.WithLogger(log),
			service.WithMetrics(usermetrics.New(reg)),
		}
	)
	if deps.db != nil {
		users = userstore.NewPostgres(deps.db)
		auditStore = auditpostgres.New(deps.db)
		svcOpts = append(svcOpts, service.WithTx(tx.NewPostgres(deps.db).WithTimeout(cfg.Database.TxTimeout)))
	} else {
		users = userstore.NewInMemory()
		auditStore = auditmemory.NewInMemoryStore()
	}
	if deps.redis != nil {
		users = userstore.NewCached(users, deps.redis.Client, cfg.Redis.CacheTTL, userstore.WithCacheLogger(log))
	}

	var sink *kafkasink.Sink
	pubOpts := []publisher.Option{publisher.WithLogger(log)}
	if deps.kafka != nil {
		sink = kafkasink.NewSink(deps.kafka, cfg.Kafka.AuditTopic,
			kafkasink.WithLogger(log),
			kafkasink.WithBreaker(circuit.New("kafka-audit", circuit.WithCooldown(cfg.Kafka.BreakerCooldown))),
		)
		pubOpts = append(pubOpts,
			publisher.WithSink(sink),
			publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer),
		)
	}
	pub := publisher.NewPublisher(auditStore, pubOpts...)

	svc, err := service.New(users, pub, svcOpts...)
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("build user service: %w", err)
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	mount := user.NewMount(svc, user.MountConfig{
		Prefix:         cfg.UsersPrefix,
		AdminRole:      cfg.Auth.AdminRole,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         log,
		Metrics:        platformMetrics,
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
	})

	root := router.Build(router.ControllerList{
		router.ControllerFunc(func(r chi.Router) {
			r.Get("/health", healthHandler(deps, sink))
			r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		}),
	})
	mount.Attach(root)

	return &app{router: root, publisher: pub}, nil
}

type healthResponse struct {
	Status   string            `json:"status"`
	Backends map[string]string `json:"backends,omitempty"`
}

// errCircuitOpen reports a reachable broker whose audit deliveries are still
// held back by the sink's breaker.
var errCircuitOpen = errors.New("audit sink circuit open")

func healthHandler(deps *infra, sink *kafkasink.Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resp := healthResponse{Status: "ok", Backends: map[string]string{}}
		var failed error
		check := func(name string, err error) {
			if err != nil {
				resp.Backends[name] = err.Error()
				failed = errors.Join(failed, err)
				return
			}
			resp.Backends[name] = "ok"
		}
		if deps.db != nil {
			check("postgres", deps.db.PingContext(ctx))
		}
		if deps.redis != nil {
			check("redis", deps.redis.Health(ctx))
		}
		if deps.kafka != nil {
			err := deps.kafka.Ping(ctx)
			if err == nil && sink != nil && !sink.Available() {
				err = errCircuitOpen
			}
			check("kafka", err)
		}
		if failed != nil {
			resp.Status = "degraded"
			httputil.WriteJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}
