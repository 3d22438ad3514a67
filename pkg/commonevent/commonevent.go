// Package commonevent is the canonical vocabulary of domain lifecycle events.
//
// Every producer and consumer of lifecycle events (audit trail, notification
// hooks, workflow triggers) refers to these constants instead of literal
// strings. The set is closed: values are compile-time constants and the
// accessors below hand out copies.
package commonevent

import (
	dErrors "erp/pkg/domain-errors"
)

// Event is a lifecycle transition of a domain entity.
type Event string

const (
	Created        Event = "created"
	Updated        Event = "updated"
	DeleteRejected Event = "deleteRejected"
	Deleted        Event = "deleted"
	Submit         Event = "submit"
	Sent           Event = "sent"
	Approved       Event = "approved"
	// Rejected is kept although its use outside the users lifecycle is unconfirmed.
	Rejected          Event = "rejected"
	Canceled          Event = "canceled"
	TriggeredWorkflow Event = "triggeredWorkflow"
)

// Entry pairs a symbolic key with its event value.
type Entry struct {
	Key   string
	Value Event
}

// entries is ordered as declared above. Never expose it directly.
var entries = [...]Entry{
	{Key: "CREATED", Value: Created},
	{Key: "UPDATED", Value: Updated},
	{Key: "DELETE_REJECTED", Value: DeleteRejected},
	{Key: "DELETED", Value: Deleted},
	{Key: "SUBMIT", Value: Submit},
	{Key: "SENT", Value: Sent},
	{Key: "APPROVED", Value: Approved},
	{Key: "REJECTED", Value: Rejected},
	{Key: "CANCELED", Value: Canceled},
	{Key: "TRIGGERED_WORKFLOW", Value: TriggeredWorkflow},
}

// Entries returns the full key/value mapping in declaration order.
func Entries() []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries[:])
	return out
}

// All returns every event in declaration order.
func All() []Event {
	out := make([]Event, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}

// Lookup resolves a symbolic key such as "TRIGGERED_WORKFLOW".
func Lookup(key string) (Event, bool) {
	for _, e := range entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Parse validates a wire value such as "triggeredWorkflow".
func Parse(value string) (Event, error) {
	e := Event(value)
	if !e.Valid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown lifecycle event: "+value)
	}
	return e, nil
}

func (e Event) String() string { return string(e) }

// Valid reports whether e is part of the vocabulary.
func (e Event) Valid() bool {
	return e.Key() != ""
}

// Key returns the symbolic key of e, or "" when e is not in the vocabulary.
func (e Event) Key() string {
	for _, entry := range entries {
		if entry.Value == e {
			return entry.Key
		}
	}
	return ""
}
