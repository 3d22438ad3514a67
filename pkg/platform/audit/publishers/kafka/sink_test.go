package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"erp/pkg/commonevent"
	id "erp/pkg/domain"
	audit "erp/pkg/platform/audit"
	"erp/pkg/platform/circuit"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.records = append(p.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func TestSinkAppend(t *testing.T) {
	t.Run("keys by user and encodes the event value", func(t *testing.T) {
		producer := &fakeProducer{}
		sink := NewSink(producer, "erp.audit")
		userID := id.NewUserID()

		err := sink.Append(context.Background(), audit.Event{
			ID:        id.NewEventID(),
			Timestamp: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
			UserID:    userID,
			Action:    commonevent.TriggeredWorkflow,
			Workflow:  "onboarding",
		})
		require.NoError(t, err)
		require.Len(t, producer.records, 1)

		rec := producer.records[0]
		assert.Equal(t, "erp.audit", rec.Topic)
		assert.Equal(t, userID.String(), string(rec.Key))

		var msg Message
		require.NoError(t, json.Unmarshal(rec.Value, &msg))
		assert.Equal(t, "triggeredWorkflow", msg.Event)
		assert.Equal(t, "operations", msg.Category)
		assert.Equal(t, "onboarding", msg.Workflow)
		assert.Equal(t, "2026-05-01T12:00:00Z", msg.Timestamp)
	})

	t.Run("returns produce errors", func(t *testing.T) {
		producer := &fakeProducer{err: errors.New("not leader")}
		sink := NewSink(producer, "erp.audit")

		err := sink.Append(context.Background(), audit.Event{ID: id.NewEventID(), Action: commonevent.Created})
		require.Error(t, err)
	})
	t.Run("open breaker skips the producer", func(t *testing.T) {
		producer := &fakeProducer{err: errors.New("broker down")}
		sink := NewSink(producer, "erp.audit",
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			WithBreaker(circuit.New("kafka-audit", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))))
		event := audit.Event{ID: id.NewEventID(), Action: commonevent.Updated}

		require.Error(t, sink.Append(context.Background(), event))
		require.Error(t, sink.Append(context.Background(), event))
		require.Len(t, producer.records, 2)

		assert.False(t, sink.Available())

		err := sink.Append(context.Background(), event)
		require.ErrorIs(t, err, ErrBrokerUnavailable)
		assert.Len(t, producer.records, 2)
	})

	t.Run("breaker closes after delivery succeeds again", func(t *testing.T) {
		clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		producer := &fakeProducer{err: errors.New("broker down")}
		sink := NewSink(producer, "erp.audit",
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			WithBreaker(circuit.New("kafka-audit",
				circuit.WithFailureThreshold(1),
				circuit.WithCooldown(time.Minute),
				circuit.WithClock(func() time.Time { return clock }),
			)))
		event := audit.Event{ID: id.NewEventID(), Action: commonevent.Sent}

		require.Error(t, sink.Append(context.Background(), event))
		require.False(t, sink.Available())

		clock = clock.Add(2 * time.Minute)
		producer.err = nil
		require.NoError(t, sink.Append(context.Background(), event))
		assert.True(t, sink.Available())
	})
}
