package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"erp/pkg/commonevent"
	id "erp/pkg/domain"
	audit "erp/pkg/platform/audit"
	txcontext "erp/pkg/platform/tx"
)

// Store implements audit.Store on the audit_events table. When a transaction
// is present in the context the insert joins it, so lifecycle changes and
// their audit record commit together.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts an audit event. Duplicate IDs are ignored so redelivered
// events stay idempotent.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.UUID(event.ID)
	if eventID == uuid.Nil {
		eventID = uuid.New()
	}
	var userID any
	if !event.UserID.IsNil() {
		userID = uuid.UUID(event.UserID)
	}

	query := `
		INSERT INTO audit_events (
			id, category, occurred_at, user_id, subject, action, reason,
			workflow, request_id, actor_id, ip, device
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		eventID,
		string(audit.CategoryOf(event.Action)),
		event.Timestamp,
		userID,
		event.Subject,
		event.Action.String(),
		event.Reason,
		event.Workflow,
		event.RequestID,
		event.ActorID,
		event.IP,
		event.Device,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns a user's events oldest first.
func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	query := `
		SELECT id, category, occurred_at, user_id, subject, action, reason,
			workflow, request_id, actor_id, ip, device
		FROM audit_events
		WHERE user_id = $1
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			eventID  uuid.UUID
			uid      uuid.NullUUID
			category string
			action   string
		)
		if err := rows.Scan(&eventID, &category, &e.Timestamp, &uid, &e.Subject, &action,
			&e.Reason, &e.Workflow, &e.RequestID, &e.ActorID, &e.IP, &e.Device); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.ID = id.EventID(eventID)
		e.Category = audit.EventCategory(category)
		e.Action = commonevent.Event(action)
		if uid.Valid {
			e.UserID = id.UserID(uid.UUID)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
