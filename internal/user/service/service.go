package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	usermetrics "erp/internal/user/metrics"
	"erp/internal/user/models"
	"erp/internal/user/store"
	"erp/pkg/commonevent"
	id "erp/pkg/domain"
	dErrors "erp/pkg/domain-errors"
	"erp/pkg/platform/audit"
	"erp/pkg/platform/sentinel"
	txcontext "erp/pkg/platform/tx"
	"erp/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

const tracerName = "erp/internal/user/service"

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	List(ctx context.Context, filter store.ListFilter) ([]*models.User, error)
	Execute(ctx context.Context, userID id.UserID, fn func(*models.User) error) (*models.User, error)
	DeleteIf(ctx context.Context, userID id.UserID, check func(*models.User) error) (*models.User, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
	List(ctx context.Context, userID id.UserID) ([]audit.Event, error)
}

// StoreTx groups a store write and its audit record into one unit of work.
// Side effects registered with txcontext.AfterCommit run only once RunInTx
// has returned nil.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service orchestrates the user approval lifecycle. Every successful
// transition is recorded on the audit trail before the call returns.
type Service struct {
	users      UserStore
	audit      AuditPublisher
	tx         StoreTx
	logger     *slog.Logger
	metrics    *usermetrics.Metrics
	tracer     trace.Tracer
	bcryptCost int
	newToken   func() (string, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *usermetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTx sets the transaction runner. Defaults to an in-process lock.
func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithBcryptCost sets the cost used to hash invitation tokens.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// WithTokenGenerator replaces the invitation token source.
func WithTokenGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		s.newToken = gen
	}
}

func New(users UserStore, publisher AuditPublisher, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if publisher == nil {
		return nil, errors.New("audit publisher is required")
	}
	s := &Service{
		users:      users,
		audit:      publisher,
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		bcryptCost: bcrypt.DefaultCost,
		newToken:   generateInviteToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = newInMemoryStoreTx()
	}
	return s, nil
}

// trace starts a span for op. The returned func ends it and records duration.
func (s *Service) trace(ctx context.Context, op string, userID id.UserID) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "user."+op)
	if !userID.IsNil() {
		span.SetAttributes(attribute.String("user.id", userID.String()))
	}
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(op, start)
		}
	}
}

// wrapUserErr translates store facts and model invariants into client errors.
func wrapUserErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "email is already registered")
	case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
		de, _ := dErrors.As(err)
		return dErrors.New(dErrors.CodeValidation, de.Message)
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "user store failure")
}

func requireUserID(userID id.UserID) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	return nil
}

type eventDetail struct {
	reason   string
	workflow string
}

// emit records a lifecycle event. A failed audit write fails the operation.
func (s *Service) emit(ctx context.Context, event commonevent.Event, u *models.User, detail eventDetail) error {
	requestID := requestcontext.RequestID(ctx)
	err := s.audit.Emit(ctx, audit.Event{
		UserID:    u.ID,
		Subject:   u.Email,
		Action:    event,
		Reason:    detail.reason,
		Workflow:  detail.workflow,
		RequestID: requestID,
		ActorID:   requestcontext.ActorID(ctx),
		IP:        requestcontext.ClientIP(ctx),
		Device:    requestcontext.Device(ctx),
		Timestamp: requestcontext.Now(ctx),
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementAuditFailure()
		}
		s.logger.ErrorContext(ctx, "failed to record lifecycle event",
			"event", event.String(),
			"user_id", u.ID.String(),
			"request_id", requestID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}

	txcontext.AfterCommit(ctx, func(ctx context.Context) {
		s.logger.InfoContext(ctx, event.String(),
			"user_id", u.ID.String(),
			"actor_id", requestcontext.ActorID(ctx),
			"request_id", requestID,
			"log_type", "audit",
		)
		if s.metrics != nil {
			s.metrics.IncrementEvent(event)
		}
	})
	return nil
}

// runInTx runs fn as one unit of work. Audit fan-out, cache invalidation and
// audit logging registered during fn happen after the commit, and are dropped
// when the unit of work fails.
func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, runHooks := txcontext.WithAfterCommit(ctx)
	if err := s.tx.RunInTx(txCtx, fn); err != nil {
		return err
	}
	runHooks(ctx)
	return nil
}

// transition runs fn against the stored user and records event in the same
// unit of work.
func (s *Service) transition(ctx context.Context, userID id.UserID, event commonevent.Event, detail eventDetail, fn func(*models.User) error) (*models.User, error) {
	if err := requireUserID(userID); err != nil {
		return nil, err
	}
	var updated *models.User
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		u, err := s.users.Execute(txCtx, userID, fn)
		if err != nil {
			return wrapUserErr(err)
		}
		if err := s.emit(txCtx, event, u, detail); err != nil {
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
