package tx

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "erp/pkg/domain-errors"
)

func TestRunInTxCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewPostgres(nil).RunInTx(ctx, func(context.Context) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.False(t, called)
}

func TestRunInTxReusesOuterTransaction(t *testing.T) {
	outer := &sql.Tx{}
	ctx := WithTx(context.Background(), outer)

	err := NewPostgres(nil).RunInTx(ctx, func(ctx context.Context) error {
		got, ok := From(ctx)
		require.True(t, ok)
		assert.Same(t, outer, got)
		return nil
	})
	require.NoError(t, err)
}

func TestWithTxIgnoresNil(t *testing.T) {
	ctx := WithTx(context.Background(), nil)
	_, ok := From(ctx)
	assert.False(t, ok)
}

func TestAfterCommit(t *testing.T) {
	t.Run("runs immediately outside a unit of work", func(t *testing.T) {
		ran := false
		AfterCommit(context.Background(), func(context.Context) { ran = true })
		assert.True(t, ran)
	})

	t.Run("waits for the owner to run the hooks", func(t *testing.T) {
		ctx, run := WithAfterCommit(context.Background())
		var order []string
		AfterCommit(ctx, func(context.Context) { order = append(order, "first") })
		AfterCommit(ctx, func(context.Context) { order = append(order, "second") })
		assert.Empty(t, order)

		run(context.Background())
		assert.Equal(t, []string{"first", "second"}, order)

		run(context.Background())
		assert.Len(t, order, 2, "hooks run once")
	})

	t.Run("nested owner defers to the outer one", func(t *testing.T) {
		outer, runOuter := WithAfterCommit(context.Background())
		inner, runInner := WithAfterCommit(outer)
		ran := false
		AfterCommit(inner, func(context.Context) { ran = true })

		runInner(inner)
		assert.False(t, ran)
		runOuter(outer)
		assert.True(t, ran)
	})

	t.Run("hooks of an abandoned unit of work never run", func(t *testing.T) {
		ctx, _ := WithAfterCommit(context.Background())
		ran := false
		AfterCommit(ctx, func(context.Context) { ran = true })
		assert.False(t, ran)
	})
}

func TestWithTimeoutReturnsConfiguredCopy(t *testing.T) {
	base := NewPostgres(nil)
	bounded := base.WithTimeout(time.Second)

	assert.Equal(t, defaultTxTimeout, base.timeout)
	assert.Equal(t, time.Second, bounded.timeout)
}
