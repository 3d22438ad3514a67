package tx

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	dErrors "erp/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

type hooksKey struct{}

type afterCommitHooks struct {
	mu  sync.Mutex
	fns []func(ctx context.Context)
}

// WithAfterCommit installs a hook list on ctx for the unit of work the caller
// is about to run. The returned run func executes the hooks registered since,
// in order, and must only be called once the unit of work has committed. When
// an outer caller already owns a hook list, ctx is returned unchanged and run
// does nothing, so hooks fire after the outermost commit.
func WithAfterCommit(ctx context.Context) (context.Context, func(ctx context.Context)) {
	if _, ok := ctx.Value(hooksKey{}).(*afterCommitHooks); ok {
		return ctx, func(context.Context) {}
	}
	hooks := &afterCommitHooks{}
	return context.WithValue(ctx, hooksKey{}, hooks), hooks.run
}

// AfterCommit defers fn until the enclosing unit of work commits. Outside a
// unit of work fn runs immediately. Hooks of a rolled back unit never run.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	hooks, ok := ctx.Value(hooksKey{}).(*afterCommitHooks)
	if !ok {
		fn(ctx)
		return
	}
	hooks.mu.Lock()
	hooks.fns = append(hooks.fns, fn)
	hooks.mu.Unlock()
}

func (h *afterCommitHooks) run(ctx context.Context) {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}

// Postgres runs callbacks inside a database transaction. Stores that look up
// the transaction with From join it automatically.
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, timeout: defaultTxTimeout}
}

// WithTimeout bounds transactions started without a caller deadline.
func (p *Postgres) WithTimeout(d time.Duration) *Postgres {
	return &Postgres{db: p.db, timeout: d}
}

// RunInTx commits when fn returns nil and rolls back otherwise. Nested calls
// reuse the outer transaction. Hooks registered with AfterCommit run after the
// commit unless an outer caller installed the hook list.
func (p *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	hookCtx := ctx
	ctx, runHooks := WithAfterCommit(ctx)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	runHooks(hookCtx)
	return nil
}
