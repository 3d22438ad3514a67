package user_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	jwttoken "erp/internal/jwt_token"
	"erp/internal/platform/metrics"
	"erp/internal/platform/router"
	"erp/internal/user"
	"erp/internal/user/handler"
	"erp/internal/user/service"
	"erp/internal/user/store"
	"erp/pkg/platform/audit/publisher"
	auditmemory "erp/pkg/platform/audit/store/memory"
	"erp/pkg/testutil"
)

type harness struct {
	root    chi.Router
	mount   *router.Mount
	metrics *metrics.Metrics
	jwt     *jwttoken.JWTService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.New(store.NewInMemory(), publisher.NewPublisher(auditmemory.NewInMemoryStore()),
		service.WithLogger(logger),
		service.WithBcryptCost(bcrypt.MinCost),
	)
	require.NoError(t, err)

	jwt := jwttoken.NewJWTService("test-signing-key", "erp-test", "erp-api")
	m := metrics.New(prometheus.NewRegistry())
	mount := user.NewMount(svc, user.MountConfig{
		Logger:         logger,
		Metrics:        m,
		Validator:      jwttoken.NewJWTServiceAdapter(jwt),
		RequestTimeout: 5 * time.Second,
	})
	root := chi.NewRouter()
	mount.Attach(root)
	return &harness{root: root, mount: mount, metrics: m, jwt: jwt}
}

func (h *harness) token(t *testing.T, role string) string {
	t.Helper()
	tok, err := h.jwt.GenerateAccessToken("actor-"+role, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (h *harness) send(t *testing.T, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = testutil.NewJSONRequest(t, method, path, body)
	} else {
		req = testutil.NewRequest(t, method, path)
	}
	if role != "" {
		req = testutil.WithBearer(req, h.token(t, role))
	}
	return testutil.DoRequest(h.root, req)
}

func TestUsersMount(t *testing.T) {
	h := newHarness(t)

	testutil.Given(t, "the users mount attached under /users", func(t *testing.T) {
		testutil.Then(t, "it is built once with every controller route", func(t *testing.T) {
			require.Same(t, h.mount.Router(), h.mount.Router())
			require.Equal(t, "/users", h.mount.Prefix())
			patterns := router.Patterns(h.mount.Router())
			require.Contains(t, patterns, "POST /{id}/approve")
			require.Contains(t, patterns, "GET /{id}/events")
			require.InDelta(t, float64(len(patterns)),
				promtestutil.ToFloat64(h.metrics.MountedRoutes.WithLabelValues("users")), 0)
		})

		testutil.Then(t, "requests without a token are rejected", func(t *testing.T) {
			rr := h.send(t, http.MethodGet, "/users", "", nil)
			testutil.AssertStatus(t, rr, http.StatusUnauthorized)
		})

		testutil.Then(t, "every response carries a request ID", func(t *testing.T) {
			rr := h.send(t, http.MethodGet, "/users", "employee", nil)
			testutil.AssertStatus(t, rr, http.StatusOK)
			require.NotEmpty(t, rr.Header().Get("X-Request-ID"))
		})
	})
}

func TestUserLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)

	var created *handler.UserResponse
	testutil.When(t, "an employee creates and submits a user", func(t *testing.T) {
		rr := h.send(t, http.MethodPost, "/users", "employee", map[string]string{
			"email": "linus@example.com", "first_name": "Linus", "last_name": "T",
		})
		testutil.AssertStatus(t, rr, http.StatusCreated)
		created = testutil.UnmarshalResponse[handler.UserResponse](t, rr)
		require.Equal(t, "/users/"+created.ID, rr.Header().Get("Location"))

		rr = h.send(t, http.MethodPost, "/users/"+created.ID+"/submit", "employee", nil)
		testutil.AssertStatus(t, rr, http.StatusOK)
	})
	require.NotNil(t, created)

	testutil.When(t, "an employee tries to approve", func(t *testing.T) {
		rr := h.send(t, http.MethodPost, "/users/"+created.ID+"/approve", "employee", nil)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	testutil.When(t, "an admin approves and the user is deleted", func(t *testing.T) {
		rr := h.send(t, http.MethodPost, "/users/"+created.ID+"/approve", "admin", nil)
		testutil.AssertStatus(t, rr, http.StatusOK)

		rr = h.send(t, http.MethodDelete, "/users/"+created.ID, "admin", nil)
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
	})

	testutil.Then(t, "the audit trail lists every event in order", func(t *testing.T) {
		rr := h.send(t, http.MethodGet, "/users/"+created.ID+"/events", "employee", nil)
		testutil.AssertStatus(t, rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[handler.EventsResponse](t, rr)
		got := make([]string, 0, resp.Count)
		for _, e := range resp.Events {
			got = append(got, e.Event.String())
		}
		require.Equal(t, []string{"created", "submit", "approved", "deleteRejected"}, got)
		require.Equal(t, "actor-admin", resp.Events[2].ActorID)
	})

	testutil.Then(t, "an invitation can be sent and verified", func(t *testing.T) {
		rr := h.send(t, http.MethodPost, "/users/"+created.ID+"/invitation", "admin", nil)
		testutil.AssertStatus(t, rr, http.StatusOK)
		inv := testutil.UnmarshalResponse[handler.InvitationResponse](t, rr)
		require.NotEmpty(t, inv.InvitationToken)

		rr = h.send(t, http.MethodPost, "/users/"+created.ID+"/invitation/verify", "employee",
			map[string]string{"token": inv.InvitationToken})
		testutil.AssertStatus(t, rr, http.StatusNoContent)
	})
}
