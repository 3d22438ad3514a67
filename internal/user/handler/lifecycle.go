package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"erp/internal/platform/router"
	"erp/internal/user/models"
	id "erp/pkg/domain"
	"erp/pkg/platform/httputil"
	"erp/pkg/platform/middleware/auth"
)

// LifecycleHandler serves the approval transitions, invitations and workflow
// triggers. Approve and reject are reserved for adminRole.
type LifecycleHandler struct {
	users     Service
	logger    *slog.Logger
	adminRole string
}

func NewLifecycle(users Service, logger *slog.Logger, adminRole string) *LifecycleHandler {
	return &LifecycleHandler{users: users, logger: logger, adminRole: adminRole}
}

func (h *LifecycleHandler) Register(r chi.Router) {
	routes := router.NewRoutes()
	routes.Post("/{id}/submit", h.transition("submit", h.users.Submit))
	routes.Post("/{id}/cancel", h.transition("cancel", h.users.Cancel))
	routes.Post("/{id}/invitation", h.handleSendInvitation)
	routes.Post("/{id}/invitation/verify", h.handleVerifyInvitation)
	routes.Post("/{id}/workflows", h.handleTriggerWorkflow)

	admin := routes.With(auth.RequireRole(h.adminRole, h.logger))
	admin.Post("/{id}/approve", h.transition("approve", h.users.Approve))
	admin.Post("/{id}/reject", h.handleReject)

	routes.Register(r)
}

// transition adapts a no-body state change into a handler.
func (h *LifecycleHandler) transition(name string, op func(ctx context.Context, userID id.UserID) (*models.User, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUserID(w, r)
		if !ok {
			return
		}
		u, err := op(r.Context(), userID)
		if err != nil {
			writeServiceError(r.Context(), h.logger, w, name+" failed", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
	}
}

func (h *LifecycleHandler) handleReject(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RejectRequest](w, r, h.logger)
	if !ok {
		return
	}
	u, err := h.users.Reject(r.Context(), userID, req.Reason)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, "reject failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *LifecycleHandler) handleSendInvitation(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	inv, err := h.users.SendInvitation(r.Context(), userID)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, "send invitation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, InvitationResponse{
		User:            toUserResponse(inv.User),
		InvitationToken: inv.Token,
	})
}

func (h *LifecycleHandler) handleVerifyInvitation(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifyInvitationRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.users.VerifyInvitation(r.Context(), userID, req.Token); err != nil {
		writeServiceError(r.Context(), h.logger, w, "verify invitation failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LifecycleHandler) handleTriggerWorkflow(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TriggerWorkflowRequest](w, r, h.logger)
	if !ok {
		return
	}
	u, err := h.users.TriggerWorkflow(r.Context(), userID, req.Workflow)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, "trigger workflow failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toUserResponse(u))
}
