package extension

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revshare"
	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/store/memory"
)

func newTestExtension(opts ...Option) *Extension {
	e := New(append([]Option{WithRetry(3, time.Millisecond)}, opts...)...)
	e.engine = revshare.New(memory.New(), revshare.WithLogger(slog.New(slog.DiscardHandler)))
	return e
}

func TestDoRetriesConflicts(t *testing.T) {
	e := newTestExtension()

	attempts := 0
	err := e.Do(context.Background(), func(context.Context, *revshare.Engine) error {
		attempts++
		if attempts < 3 {
			return revshare.ErrConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnPermanentErrors(t *testing.T) {
	e := newTestExtension()

	attempts := 0
	err := e.Do(context.Background(), func(ctx context.Context, eng *revshare.Engine) error {
		attempts++
		_, err := eng.InitPool(ctx, auth.As("admin"), 31)
		return err
	})
	require.ErrorIs(t, err, revshare.ErrInvalidFeePercent)
	assert.Equal(t, 1, attempts)
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	e := newTestExtension()

	attempts := 0
	err := e.Do(context.Background(), func(context.Context, *revshare.Engine) error {
		attempts++
		return revshare.ErrConflict
	})
	require.ErrorIs(t, err, revshare.ErrConflict)
	assert.Equal(t, 3, attempts)
}

func TestDoRequiresEngine(t *testing.T) {
	e := New()
	err := e.Do(context.Background(), func(context.Context, *revshare.Engine) error {
		t.Fatal("op must not run without an engine")
		return nil
	})
	require.Error(t, err)
}

func TestMergeConfigurations(t *testing.T) {
	e := New()

	got := e.mergeConfigurations(
		Config{PoolKey: "label-a", UsageBatchSize: 50},
		Config{PoolKey: "ignored", DisableMigrate: true, RetryAttempts: 9},
	)

	assert.Equal(t, "label-a", got.PoolKey)
	assert.Equal(t, 50, got.UsageBatchSize)
	assert.True(t, got.DisableMigrate)
	assert.Equal(t, uint(9), got.RetryAttempts)
	assert.Equal(t, DefaultConfig().UsageFlushInterval, got.UsageFlushInterval)
	assert.Equal(t, DefaultConfig().RetryDelay, got.RetryDelay)
}

func TestBuildEngineOpts(t *testing.T) {
	e := New(WithPoolKey("label-a"), WithSolvencyCheck())
	e.config = e.mergeWithDefaults(e.config)

	eng := revshare.New(memory.New(), e.buildEngineOpts()...)
	assert.Equal(t, "label-a", eng.PoolKey())
}

func TestDisableMigrateSkipsStoreMigration(t *testing.T) {
	closed := memory.New()
	require.NoError(t, closed.Close())

	e := New(WithStore(closed), WithDisableMigrate())
	s := e.engineStore()

	require.NoError(t, s.Migrate(context.Background()))
	require.ErrorIs(t, s.Ping(context.Background()), revshare.ErrStoreClosed)
}
