package testutil

import (
	"net/http"

	"erp/pkg/requestcontext"
)

// WithActor marks the request as authenticated by actorID with role, the
// state RequireAuth leaves behind for handlers.
func WithActor(req *http.Request, actorID, role string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actorID, role))
}

// WithRequestID attaches a request ID the way the request ID middleware does.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
