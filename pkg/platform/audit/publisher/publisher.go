// Package publisher emits audit events to the system-of-record store and
// fans them out to secondary sinks (Kafka).
//
// Store writes are synchronous and fail-closed: if the audit record cannot be
// persisted, Emit returns an error and the calling operation must fail.
// Sink delivery is best effort, optionally asynchronous, and deferred until
// the surrounding unit of work commits. Events of a rolled back unit never
// leave the process.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	id "erp/pkg/domain"
	audit "erp/pkg/platform/audit"
	"erp/pkg/platform/audit/worker"
	txcontext "erp/pkg/platform/tx"
)

// Publisher captures structured audit events. It is append-only.
type Publisher struct {
	store  audit.Store
	sinks  []audit.Sink
	logger *slog.Logger
	clock  func() time.Time

	bufferSize int
	mu         sync.RWMutex
	queue      chan audit.Event
	closed     bool
	running    bool
	done       chan struct{}
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithSink adds a secondary sink that receives every stored event.
func WithSink(sink audit.Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// WithAsyncBuffer delivers sink events through a background worker with a
// buffer of size n. Events are dropped, with a warning, when the buffer is full.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClock overrides time.Now for tests.
func WithClock(clock func() time.Time) Option {
	return func(p *Publisher) {
		p.clock = clock
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 && len(p.sinks) > 0 {
		p.queue = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
	}
	return p
}

// Run forwards queued events to the sinks until Close is called. It returns
// immediately when the publisher delivers synchronously. Without a running
// Run, async events queue up to the buffer size and are then dropped.
func (p *Publisher) Run(ctx context.Context) error {
	if p.queue == nil {
		return nil
	}
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("audit publisher already running")
	}
	p.running = true
	p.mu.Unlock()

	defer close(p.done)
	err := worker.NewWorker(fanout(p.sinks), p.queue, p.logger).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Emit fills in ID, timestamp and category and persists the event. Sink
// delivery is deferred until the caller's unit of work commits (see
// txcontext.AfterCommit), so sinks never see events of a rolled back write.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID.IsNil() {
		event.ID = id.NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock()
	}
	event.Category = audit.CategoryOf(event.Action)

	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	if len(p.sinks) > 0 {
		txcontext.AfterCommit(ctx, func(ctx context.Context) {
			p.forward(ctx, event)
		})
	}
	return nil
}

func (p *Publisher) forward(ctx context.Context, event audit.Event) {
	if p.queue == nil {
		if err := fanout(p.sinks).Append(ctx, event); err != nil {
			p.logger.ErrorContext(ctx, "audit sink append failed",
				"event_id", event.ID.String(),
				"action", event.Action.String(),
				"error", err,
			)
		}
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.WarnContext(ctx, "audit publisher closed, sink delivery skipped",
			"event_id", event.ID.String(),
		)
		return
	}
	select {
	case p.queue <- event:
	default:
		p.logger.WarnContext(ctx, "audit sink buffer full, event dropped",
			"event_id", event.ID.String(),
			"action", event.Action.String(),
		)
	}
}

func (p *Publisher) List(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	return p.store.ListByUser(ctx, userID)
}

// Close stops accepting sink deliveries and, when Run is active, waits until
// buffered events have been forwarded. Safe to call more than once.
func (p *Publisher) Close() {
	if p.queue == nil {
		return
	}
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	running := p.running
	p.mu.Unlock()
	if running {
		<-p.done
	}
}

type fanout []audit.Sink

func (f fanout) Append(ctx context.Context, event audit.Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
