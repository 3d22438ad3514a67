package service

import (
	"context"

	"erp/pkg/commonevent"
	id "erp/pkg/domain"
	dErrors "erp/pkg/domain-errors"
	"erp/pkg/platform/audit"
)

// Events returns the audit trail of a user in chronological order. The trail
// outlives the user, so deleted users still have one. A non-empty filter
// keeps only events of that type.
func (s *Service) Events(ctx context.Context, userID id.UserID, filter commonevent.Event) (events []audit.Event, err error) {
	ctx, done := s.trace(ctx, "events", userID)
	defer func() { done(err) }()

	if err := requireUserID(userID); err != nil {
		return nil, err
	}
	if filter != "" && !filter.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown event: "+filter.String())
	}
	all, err := s.audit.List(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail")
	}
	events = make([]audit.Event, 0, len(all))
	for _, e := range all {
		if filter == "" || e.Action == filter {
			events = append(events, e)
		}
	}
	return events, nil
}
