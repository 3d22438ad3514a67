package audit

import (
	"time"

	"erp/pkg/commonevent"
	id "erp/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal or regulatory significance
	// and long retention: record creation, deletion and approval decisions.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring, such as
	// refused destructive operations.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine workflow activity. Can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture lifecycle transitions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        id.EventID
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	// Subject is a human readable identifier of the affected record (e.g. email).
	Subject string
	Action  commonevent.Event
	Reason  string
	// Workflow names the workflow started by a triggeredWorkflow event.
	Workflow  string
	RequestID string
	// ActorID tracks who performed the action when different from UserID.
	ActorID string
	IP      string
	Device  string
}

// eventCategories maps each lifecycle event to its category.
var eventCategories = map[commonevent.Event]EventCategory{
	commonevent.Created:  CategoryCompliance,
	commonevent.Deleted:  CategoryCompliance,
	commonevent.Approved: CategoryCompliance,
	commonevent.Rejected: CategoryCompliance,

	commonevent.DeleteRejected: CategorySecurity,

	commonevent.Updated:           CategoryOperations,
	commonevent.Submit:            CategoryOperations,
	commonevent.Sent:              CategoryOperations,
	commonevent.Canceled:          CategoryOperations,
	commonevent.TriggeredWorkflow: CategoryOperations,
}

// CategoryOf returns the category for a lifecycle event.
// Unknown events default to CategoryOperations.
func CategoryOf(e commonevent.Event) EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
