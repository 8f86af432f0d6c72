package revshare_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revshare"
	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/id"
)

func TestRecordUsageDisabled(t *testing.T) {
	e, _, p := setup(t, 10)

	err := e.RecordUsage(context.Background(), usage(p, 1, 1))
	require.ErrorIs(t, err, revshare.ErrUsageFeedDisabled)
}

func TestRecordUsageAggregatesOnFlush(t *testing.T) {
	ctx := context.Background()
	e, _, p := setup(t, 10, revshare.WithUsageFeed(auth.As(admin), 1000, 0, time.Hour))

	p2, err := e.RegisterPayee(ctx, auth.As(artist2), "artist-2")
	require.NoError(t, err)

	for range 120 {
		require.NoError(t, e.RecordUsage(ctx, usage(p, 1, 1_000)))
	}
	require.NoError(t, e.RecordUsage(ctx, usage(p2, 5, 1_000)))
	require.NoError(t, e.RecordUsage(ctx, usage(p, 0, 1_000)))

	assert.Equal(t, 121, e.FlushUsage(ctx))

	got, err := e.Payee(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 120, got.TotalUsageUnits)
	assert.EqualValues(t, 108_000, got.PendingBalance)

	got2, err := e.Payee(ctx, p2.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, got2.TotalUsageUnits)

	// One payment per payee/label/rate after aggregation.
	events, err := e.Events(ctx, event.ListOpts{Kind: event.KindUsagePaymentProcessed})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	assert.Zero(t, e.FlushUsage(ctx))
}

func TestRecordUsageValidation(t *testing.T) {
	e, _, _ := setup(t, 10, revshare.WithUsageFeed(auth.As(admin), 1, 0, time.Hour))
	ctx := context.Background()

	err := e.RecordUsage(ctx, revshare.UsageItem{Units: 1})
	require.ErrorIs(t, err, revshare.ErrInvalidInput)

	item := revshare.UsageItem{PayeeID: id.NewPayeeID(), ExternalID: "x", Units: 1, Rate: 1}
	require.NoError(t, e.RecordUsage(ctx, item))

	err = e.RecordUsage(ctx, item)
	require.ErrorIs(t, err, revshare.ErrUsageBufferFull)
	assert.True(t, revshare.IsRetryable(err))
}

func TestUsageFeedFlushesOnStop(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	e, _, p := setup(t, 0,
		revshare.WithUsageFeed(auth.As(admin), 100, 50, time.Hour),
		revshare.WithPlugin(rec),
	)

	require.NoError(t, e.Start(ctx))
	for range 10 {
		require.NoError(t, e.RecordUsage(ctx, usage(p, 3, 2)))
	}
	require.NoError(t, e.Stop())

	got, err := e.Payee(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 30, got.TotalUsageUnits)
	assert.EqualValues(t, 60, got.PendingBalance)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.flushed)
}

func TestUsageFeedDropsUnauthorizedOperator(t *testing.T) {
	ctx := context.Background()
	e, _, p := setup(t, 0, revshare.WithUsageFeed(auth.As(artist), 100, 0, time.Hour))

	require.NoError(t, e.RecordUsage(ctx, usage(p, 3, 2)))
	assert.Equal(t, 1, e.FlushUsage(ctx))

	got, err := e.Payee(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalUsageUnits)
}

func TestUsageFeedDropsOnlyRejectedItems(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	e, _, p := setup(t, 0,
		revshare.WithUsageFeed(auth.As(admin), 100, 0, time.Hour),
		revshare.WithPlugin(rec),
	)

	p2, err := e.RegisterPayee(ctx, auth.As(artist2), "artist-2")
	require.NoError(t, err)

	// The stale label sits ahead of the valid item in the same chunk.
	stale := revshare.UsageItem{PayeeID: p2.ID, ExternalID: "renamed", Units: 5, Rate: 1}
	require.NoError(t, e.RecordUsage(ctx, stale))
	require.NoError(t, e.RecordUsage(ctx, usage(p, 10, 1)))
	assert.Equal(t, 2, e.FlushUsage(ctx))

	got, err := e.Payee(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, got.TotalUsageUnits)

	got2, err := e.Payee(ctx, p2.ID)
	require.NoError(t, err)
	assert.Zero(t, got2.TotalUsageUnits)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{revshare.OpBatchProcess}, rec.rejected)
}

func TestRecordUsageAfterStop(t *testing.T) {
	ctx := context.Background()
	e, _, p := setup(t, 0, revshare.WithUsageFeed(auth.As(admin), 100, 0, time.Hour))

	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.Stop())

	err := e.RecordUsage(ctx, usage(p, 1, 1))
	require.ErrorIs(t, err, revshare.ErrStoreClosed)
	assert.False(t, revshare.IsRetryable(err))
	assert.Zero(t, e.FlushUsage(ctx))
}
