package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	usermetrics "erp/internal/user/metrics"
	"erp/internal/user/models"
	"erp/internal/user/service/mocks"
	"erp/internal/user/store"
	"erp/pkg/commonevent"
	id "erp/pkg/domain"
	dErrors "erp/pkg/domain-errors"
	"erp/pkg/platform/audit"
	auditmemory "erp/pkg/platform/audit/store/memory"
	"erp/pkg/platform/audit/publisher"
	"erp/pkg/requestcontext"
)

// =============================================================================
// User Service Test Suite
// =============================================================================
// Runs the service against the in-memory stores and a real audit publisher so
// each lifecycle operation is checked together with the event it records.

type UserServiceSuite struct {
	suite.Suite
	users      *store.InMemoryStore
	auditStore *auditmemory.InMemoryStore
	metrics    *usermetrics.Metrics
	service    *Service
	ctx        context.Context
	now        time.Time
}

func TestUserServiceSuite(t *testing.T) {
	suite.Run(t, new(UserServiceSuite))
}

func (s *UserServiceSuite) SetupTest() {
	s.users = store.NewInMemory()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.metrics = usermetrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	s.service, err = New(s.users, publisher.NewPublisher(s.auditStore),
		WithLogger(logger),
		WithMetrics(s.metrics),
		WithBcryptCost(bcrypt.MinCost),
		WithTokenGenerator(func() (string, error) { return "invite-token", nil }),
	)
	s.Require().NoError(err)

	s.now = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), s.now)
	ctx = requestcontext.WithActor(ctx, "actor-1", "admin")
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	s.ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.9", "Firefox on Linux")
}

func (s *UserServiceSuite) create(email string) *models.User {
	u, err := s.service.Create(s.ctx, CreateInput{
		Email: email, FirstName: "Ada", LastName: "Lovelace", Role: models.RoleEmployee,
	})
	s.Require().NoError(err)
	return u
}

func (s *UserServiceSuite) actions(userID id.UserID) []commonevent.Event {
	events, err := s.auditStore.ListByUser(context.Background(), userID)
	s.Require().NoError(err)
	out := make([]commonevent.Event, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *UserServiceSuite) approved(email string) *models.User {
	u := s.create(email)
	_, err := s.service.Submit(s.ctx, u.ID)
	s.Require().NoError(err)
	u, err = s.service.Approve(s.ctx, u.ID)
	s.Require().NoError(err)
	return u
}

func (s *UserServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, publisher.NewPublisher(auditmemory.NewInMemoryStore()))
		s.ErrorContains(err, "user store is required")
	})

	s.Run("nil publisher returns error", func() {
		_, err := New(store.NewInMemory(), nil)
		s.ErrorContains(err, "audit publisher is required")
	})
}

func (s *UserServiceSuite) TestCreate() {
	s.Run("records created with request metadata", func() {
		u := s.create("ada@example.com")
		s.Equal(models.StatusDraft, u.Status)
		s.Equal(s.now, u.CreatedAt)

		events, err := s.auditStore.ListByUser(context.Background(), u.ID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		e := events[0]
		s.Equal(commonevent.Created, e.Action)
		s.Equal(audit.CategoryCompliance, e.Category)
		s.Equal("ada@example.com", e.Subject)
		s.Equal("actor-1", e.ActorID)
		s.Equal("req-1", e.RequestID)
		s.Equal("203.0.113.9", e.IP)
		s.Equal("Firefox on Linux", e.Device)
		s.Equal(s.now, e.Timestamp)
		s.InDelta(1, testutil.ToFloat64(s.metrics.LifecycleEvents.WithLabelValues("created")), 0)
	})

	s.Run("invalid input is a validation error", func() {
		_, err := s.service.Create(s.ctx, CreateInput{Email: "nope", FirstName: "A", LastName: "B", Role: models.RoleEmployee})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duplicate email is a conflict and records nothing", func() {
		s.create("dup@example.com")
		before, _ := s.auditStore.ListRecent(context.Background(), 100)
		_, err := s.service.Create(s.ctx, CreateInput{Email: "Dup@Example.com", FirstName: "A", LastName: "B", Role: models.RoleEmployee})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		after, _ := s.auditStore.ListRecent(context.Background(), 100)
		s.Len(after, len(before))
	})
}

func (s *UserServiceSuite) TestGetAndList() {
	a := s.create("a@example.com")
	b := s.create("b@example.com")
	_, err := s.service.Submit(s.ctx, b.ID)
	s.Require().NoError(err)

	got, err := s.service.Get(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(a.Email, got.Email)

	_, err = s.service.Get(s.ctx, id.NewUserID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Get(s.ctx, id.UserID{})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	all, err := s.service.List(s.ctx, "")
	s.Require().NoError(err)
	s.Len(all, 2)

	submitted, err := s.service.List(s.ctx, models.StatusSubmitted)
	s.Require().NoError(err)
	s.Require().Len(submitted, 1)
	s.Equal(b.ID, submitted[0].ID)

	_, err = s.service.List(s.ctx, models.Status("archived"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *UserServiceSuite) TestApprovalLifecycle() {
	u := s.create("flow@example.com")

	_, err := s.service.Approve(s.ctx, u.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "approve before submit")

	_, err = s.service.Submit(s.ctx, u.ID)
	s.Require().NoError(err)

	rejected, err := s.service.Reject(s.ctx, u.ID, "  missing department ")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)
	s.Equal("missing department", rejected.RejectReason)

	last := "Byron"
	updated, err := s.service.Update(s.ctx, u.ID, models.Profile{LastName: &last})
	s.Require().NoError(err)
	s.Equal(models.StatusDraft, updated.Status)

	_, err = s.service.Submit(s.ctx, u.ID)
	s.Require().NoError(err)
	approved, err := s.service.Approve(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, approved.Status)

	s.Equal([]commonevent.Event{
		commonevent.Created,
		commonevent.Submit,
		commonevent.Rejected,
		commonevent.Updated,
		commonevent.Submit,
		commonevent.Approved,
	}, s.actions(u.ID))

	events, err := s.service.Events(s.ctx, u.ID, commonevent.Rejected)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("missing department", events[0].Reason)
}

func (s *UserServiceSuite) TestRejectRequiresReason() {
	u := s.create("reason@example.com")
	_, err := s.service.Submit(s.ctx, u.ID)
	s.Require().NoError(err)

	_, err = s.service.Reject(s.ctx, u.ID, "   ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal([]commonevent.Event{commonevent.Created, commonevent.Submit}, s.actions(u.ID))
}

func (s *UserServiceSuite) TestCancel() {
	u := s.create("cancel@example.com")
	canceled, err := s.service.Cancel(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCanceled, canceled.Status)

	_, err = s.service.Cancel(s.ctx, u.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	_, err = s.service.Cancel(s.ctx, id.NewUserID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *UserServiceSuite) TestDelete() {
	s.Run("draft user is deleted and trail survives", func() {
		u := s.create("gone@example.com")
		s.Require().NoError(s.service.Delete(s.ctx, u.ID))

		_, err := s.service.Get(s.ctx, u.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		events, err := s.service.Events(s.ctx, u.ID, "")
		s.Require().NoError(err)
		s.Len(events, 2)
		s.Equal(commonevent.Deleted, events[1].Action)
	})

	s.Run("approved user is refused and the refusal is recorded", func() {
		u := s.approved("keep@example.com")

		err := s.service.Delete(s.ctx, u.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		_, err = s.service.Get(s.ctx, u.ID)
		s.NoError(err)

		events, err := s.service.Events(s.ctx, u.ID, commonevent.DeleteRejected)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(audit.CategorySecurity, events[0].Category)
		s.NotEmpty(events[0].Reason)
	})

	s.Run("missing user is not found", func() {
		err := s.service.Delete(s.ctx, id.NewUserID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *UserServiceSuite) TestInvitation() {
	s.Run("only approved users can be invited", func() {
		u := s.create("draft-invite@example.com")
		_, err := s.service.SendInvitation(s.ctx, u.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("token is returned once and stored hashed", func() {
		u := s.approved("invite@example.com")
		inv, err := s.service.SendInvitation(s.ctx, u.ID)
		s.Require().NoError(err)
		s.Equal("invite-token", inv.Token)
		s.NotEqual("invite-token", inv.User.InviteHash)
		s.Require().NotNil(inv.User.InvitedAt)

		s.NoError(s.service.VerifyInvitation(s.ctx, u.ID, "invite-token"))
		err = s.service.VerifyInvitation(s.ctx, u.ID, "wrong")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		s.Contains(s.actions(u.ID), commonevent.Sent)
	})

	s.Run("verify without invitation is invalid state", func() {
		u := s.create("never-invited@example.com")
		err := s.service.VerifyInvitation(s.ctx, u.ID, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *UserServiceSuite) TestTriggerWorkflow() {
	u := s.create("wf@example.com")
	updated, err := s.service.TriggerWorkflow(s.ctx, u.ID, "onboarding")
	s.Require().NoError(err)
	s.Equal([]string{"onboarding"}, updated.Workflows)

	events, err := s.service.Events(s.ctx, u.ID, commonevent.TriggeredWorkflow)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("onboarding", events[0].Workflow)

	_, err = s.service.TriggerWorkflow(s.ctx, u.ID, "Not Valid!")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *UserServiceSuite) TestEventsRejectsUnknownFilter() {
	u := s.create("filter@example.com")
	_, err := s.service.Events(s.ctx, u.ID, commonevent.Event("archived"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

// =============================================================================
// Audit failure handling
// =============================================================================

type AuditFailureSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	publisher *mocks.MockAuditPublisher
	users     *store.InMemoryStore
	metrics   *usermetrics.Metrics
	service   *Service
}

func TestAuditFailureSuite(t *testing.T) {
	suite.Run(t, new(AuditFailureSuite))
}

func (s *AuditFailureSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.publisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.users = store.NewInMemory()
	s.metrics = usermetrics.New(prometheus.NewRegistry())
	var err error
	s.service, err = New(s.users, s.publisher,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
}

func (s *AuditFailureSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *AuditFailureSuite) TestEmitFailureFailsOperation() {
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	_, err := s.service.Create(context.Background(), CreateInput{
		Email: "x@example.com", FirstName: "X", LastName: "Y", Role: models.RoleManager,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.InDelta(1, testutil.ToFloat64(s.metrics.AuditFailures), 0)
}

func (s *AuditFailureSuite) TestEmitCarriesTransitionDetails() {
	u, err := models.NewUser(id.NewUserID(), "wf@example.com", "W", "F", models.RoleEmployee, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.users.Create(context.Background(), u))

	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e audit.Event) error {
			s.Equal(commonevent.TriggeredWorkflow, e.Action)
			s.Equal(u.ID, e.UserID)
			s.Equal("payroll", e.Workflow)
			return nil
		})

	_, err = s.service.TriggerWorkflow(context.Background(), u.ID, "payroll")
	s.NoError(err)
}

func (s *AuditFailureSuite) TestEventsStoreFailure() {
	s.publisher.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))
	_, err := s.service.Events(context.Background(), id.NewUserID(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

// =============================================================================
// Commit Ordering Suite
// =============================================================================
// Sink delivery, audit logging and event metrics belong to committed work only.

type recordingSink struct {
	events []audit.Event
}

func (r *recordingSink) Append(_ context.Context, e audit.Event) error {
	r.events = append(r.events, e)
	return nil
}

// commitFailingTx runs the unit of work and then fails as a lost connection
// during COMMIT would.
type commitFailingTx struct{}

func (commitFailingTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return errors.New("commit tx: connection reset")
}

type CommitOrderingSuite struct {
	suite.Suite
	sink    *recordingSink
	metrics *usermetrics.Metrics
	ctx     context.Context
}

func TestCommitOrderingSuite(t *testing.T) {
	suite.Run(t, new(CommitOrderingSuite))
}

func (s *CommitOrderingSuite) SetupTest() {
	s.sink = &recordingSink{}
	s.metrics = usermetrics.New(prometheus.NewRegistry())
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC))
}

func (s *CommitOrderingSuite) newService(opts ...Option) *Service {
	pub := publisher.NewPublisher(auditmemory.NewInMemoryStore(), publisher.WithSink(s.sink))
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
	}, opts...)
	svc, err := New(store.NewInMemory(), pub, opts...)
	s.Require().NoError(err)
	return svc
}

func (s *CommitOrderingSuite) TestFailedCommitReachesNoSink() {
	svc := s.newService(WithTx(commitFailingTx{}))

	_, err := svc.Create(s.ctx, CreateInput{
		Email: "lost@example.com", FirstName: "Lost", LastName: "Write", Role: models.RoleEmployee,
	})

	s.Require().Error(err)
	s.Empty(s.sink.events, "no event may be published for an uncommitted write")
	s.Zero(testutil.ToFloat64(s.metrics.LifecycleEvents.WithLabelValues(commonevent.Created.String())))
}

func (s *CommitOrderingSuite) TestCommittedWorkReachesSinkInOrder() {
	svc := s.newService()

	u, err := svc.Create(s.ctx, CreateInput{
		Email: "kept@example.com", FirstName: "Kept", LastName: "Write", Role: models.RoleEmployee,
	})
	s.Require().NoError(err)
	_, err = svc.Submit(s.ctx, u.ID)
	s.Require().NoError(err)

	s.Require().Len(s.sink.events, 2)
	s.Equal(commonevent.Created, s.sink.events[0].Action)
	s.Equal(commonevent.Submit, s.sink.events[1].Action)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.LifecycleEvents.WithLabelValues(commonevent.Created.String())))
}
