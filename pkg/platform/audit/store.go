package audit

import (
	"context"

	id "erp/pkg/domain"
)

// Sink receives audit events. Sinks are append-only.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store is a queryable Sink and the system of record for the audit trail.
type Store interface {
	Sink
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
