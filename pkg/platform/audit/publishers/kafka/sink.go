// Package kafka publishes audit events to a Kafka topic for downstream
// consumers (notifications, workflow engines, analytics).
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "erp/pkg/platform/audit"
	"erp/pkg/platform/circuit"
)

// ErrBrokerUnavailable is returned without producing while the breaker is open.
var ErrBrokerUnavailable = errors.New("kafka audit sink: broker unavailable")

// Producer is the subset of *kgo.Client the sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Sink implements audit.Sink by producing one record per event, keyed by the
// affected user so a user's lifecycle stays ordered within a partition.
type Sink struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type Option func(*Sink)

// WithBreaker makes Append fail fast after repeated produce failures.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Sink) {
		s.breaker = b
	}
}

// WithLogger receives breaker open and close transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSink(producer Producer, topic string, opts ...Option) *Sink {
	s := &Sink{producer: producer, topic: topic, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Message is the JSON payload written to Kafka.
type Message struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Workflow  string `json:"workflow,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	msg := Message{
		ID:        event.ID.String(),
		Category:  string(audit.CategoryOf(event.Action)),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Event:     event.Action.String(),
		Reason:    event.Reason,
		Workflow:  event.Workflow,
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
	}
	key := []byte(event.ID.String())
	if !event.UserID.IsNil() {
		msg.UserID = event.UserID.String()
		key = []byte(msg.UserID)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal audit message: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   key,
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event", Value: []byte(msg.Event)},
			{Key: "category", Value: []byte(msg.Category)},
		},
	}
	if s.breaker != nil && !s.breaker.Allow() {
		return ErrBrokerUnavailable
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		s.recordFailure(ctx, err)
		return fmt.Errorf("produce audit event: %w", err)
	}
	s.recordSuccess(ctx)
	return nil
}

func (s *Sink) recordFailure(ctx context.Context, err error) {
	if s.breaker == nil {
		return
	}
	if _, change := s.breaker.RecordFailure(); change.Opened {
		s.logger.WarnContext(ctx, "kafka audit sink circuit opened",
			"breaker", s.breaker.Name(),
			"topic", s.topic,
			"error", err,
		)
	}
}

func (s *Sink) recordSuccess(ctx context.Context) {
	if s.breaker == nil {
		return
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "kafka audit sink circuit closed",
			"breaker", s.breaker.Name(),
			"topic", s.topic,
		)
	}
}

// Available reports false while the breaker is holding deliveries back.
func (s *Sink) Available() bool {
	return s.breaker == nil || !s.breaker.IsOpen()
}
