package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"erp/internal/user/models"
	"erp/internal/user/service"
	"erp/pkg/commonevent"
	id "erp/pkg/domain"
	dErrors "erp/pkg/domain-errors"
	"erp/pkg/platform/audit"
	"erp/pkg/platform/httputil"
	"erp/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

// Service defines the user operations the HTTP layer depends on.
type Service interface {
	Create(ctx context.Context, in service.CreateInput) (*models.User, error)
	Get(ctx context.Context, userID id.UserID) (*models.User, error)
	List(ctx context.Context, status models.Status) ([]*models.User, error)
	Update(ctx context.Context, userID id.UserID, p models.Profile) (*models.User, error)
	Delete(ctx context.Context, userID id.UserID) error
	Submit(ctx context.Context, userID id.UserID) (*models.User, error)
	Approve(ctx context.Context, userID id.UserID) (*models.User, error)
	Reject(ctx context.Context, userID id.UserID, reason string) (*models.User, error)
	Cancel(ctx context.Context, userID id.UserID) (*models.User, error)
	SendInvitation(ctx context.Context, userID id.UserID) (*service.Invitation, error)
	VerifyInvitation(ctx context.Context, userID id.UserID, token string) error
	TriggerWorkflow(ctx context.Context, userID id.UserID, workflow string) (*models.User, error)
	Events(ctx context.Context, userID id.UserID, filter commonevent.Event) ([]audit.Event, error)
}

// Handler serves user CRUD.
type Handler struct {
	users  Service
	logger *slog.Logger
}

func New(users Service, logger *slog.Logger) *Handler {
	return &Handler{users: users, logger: logger}
}

// Register attaches the CRUD routes relative to the mount prefix.
func (h *Handler) Register(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
}

// parseUserID reads the {id} path parameter, writing a 400 on failure.
func parseUserID(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.UserID{}, false
	}
	return userID, true
}

// writeServiceError logs at a level matching the outcome and writes the
// error envelope.
func writeServiceError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, msg string, err error) {
	requestID := requestcontext.RequestID(ctx)
	if de, ok := dErrors.As(err); ok && dErrors.ToHTTPStatus(de.Code) < http.StatusInternalServerError {
		logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
	} else {
		logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateUserRequest](w, r, h.logger)
	if !ok {
		return
	}
	u, err := h.users.Create(ctx, req.toInput())
	if err != nil {
		writeServiceError(ctx, h.logger, w, "failed to create user", err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+u.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, toUserResponse(u))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var status models.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := models.ParseStatus(raw)
		if err != nil {
			writeServiceError(ctx, h.logger, w, "invalid status filter", err)
			return
		}
		status = parsed
	}
	users, err := h.users.List(ctx, status)
	if err != nil {
		writeServiceError(ctx, h.logger, w, "failed to list users", err)
		return
	}
	resp := ListUsersResponse{Users: make([]UserResponse, 0, len(users)), Count: len(users)}
	for _, u := range users {
		resp.Users = append(resp.Users, toUserResponse(u))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, "failed to get user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateUserRequest](w, r, h.logger)
	if !ok {
		return
	}
	u, err := h.users.Update(r.Context(), userID, req.toProfile())
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, "failed to update user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	if err := h.users.Delete(r.Context(), userID); err != nil {
		writeServiceError(r.Context(), h.logger, w, "failed to delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
