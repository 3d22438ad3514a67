package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"erp/pkg/commonevent"
	"erp/pkg/platform/httputil"
)

// EventsHandler exposes a user's audit trail.
type EventsHandler struct {
	users  Service
	logger *slog.Logger
}

func NewEvents(users Service, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{users: users, logger: logger}
}

func (h *EventsHandler) Register(r chi.Router) {
	r.Get("/{id}/events", h.handleList)
}

// handleList serves GET /{id}/events?event=<value>.
func (h *EventsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	var filter commonevent.Event
	if raw := r.URL.Query().Get("event"); raw != "" {
		parsed, err := commonevent.Parse(raw)
		if err != nil {
			writeServiceError(ctx, h.logger, w, "invalid event filter", err)
			return
		}
		filter = parsed
	}
	events, err := h.users.Events(ctx, userID, filter)
	if err != nil {
		writeServiceError(ctx, h.logger, w, "failed to list user events", err)
		return
	}
	resp := EventsResponse{
		UserID: userID.String(),
		Events: make([]EventResponse, 0, len(events)),
		Count:  len(events),
	}
	for _, e := range events {
		resp.Events = append(resp.Events, toEventResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
