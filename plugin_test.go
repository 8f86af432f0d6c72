package revshare_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revshare"
	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/payee"
	"github.com/xraph/revshare/plugin"
	"github.com/xraph/revshare/pool"
)

type recorder struct {
	mu       sync.Mutex
	events   []event.Kind
	rejected []string
	batches  []int
	credited []uint64
	flushed  int
	started  bool
	stopped  bool
}

var (
	_ plugin.OnInit                  = (*recorder)(nil)
	_ plugin.OnShutdown              = (*recorder)(nil)
	_ plugin.OnEvent                 = (*recorder)(nil)
	_ plugin.OnOperationRejected     = (*recorder)(nil)
	_ plugin.OnBatchProcessed        = (*recorder)(nil)
	_ plugin.OnUsagePaymentProcessed = (*recorder)(nil)
	_ plugin.OnPoolInitialized       = (*recorder)(nil)
	_ plugin.OnUsageFlushed          = (*recorder)(nil)
)

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnInit(context.Context, any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	return nil
}

func (r *recorder) OnShutdown(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return nil
}

func (r *recorder) OnPoolInitialized(_ context.Context, p *pool.Pool) error {
	if p.Administrator != admin {
		return assert.AnError
	}
	return nil
}

func (r *recorder) OnEvent(_ context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt.Kind)
	return nil
}

func (r *recorder) OnOperationRejected(_ context.Context, op string, _ auth.Identity, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, op)
	return nil
}

func (r *recorder) OnBatchProcessed(_ context.Context, items int, _ uint64, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, items)
	return nil
}

func (r *recorder) OnUsagePaymentProcessed(_ context.Context, _ *payee.Payee, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credited = append(r.credited, evt.Net)
	return nil
}

func (r *recorder) OnUsageFlushed(_ context.Context, count int, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed += count
	return nil
}

// failing always errors; hook failures must never fail the operation.
type failing struct{}

func (failing) Name() string { return "failing" }

func (failing) OnEvent(context.Context, *event.Event) error { return assert.AnError }

func TestPluginHooks(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}

	e, _, p := setup(t, 10, revshare.WithPlugin(rec), revshare.WithPlugin(failing{}))
	require.Equal(t, 2, e.Plugins().Count())

	require.NoError(t, e.Start(ctx))

	_, err := e.BatchProcess(ctx, auth.As(admin), []revshare.UsageItem{
		usage(p, 10, 10),
		usage(p, 20, 10),
	})
	require.NoError(t, err)

	_, err = e.ProcessUsagePayment(ctx, auth.As(artist), usage(p, 1, 1))
	require.Error(t, err)

	require.NoError(t, e.Stop())

	rec.mu.Lock()
	defer rec.mu.Unlock()

	assert.True(t, rec.started)
	assert.True(t, rec.stopped)
	assert.Equal(t, []event.Kind{
		event.KindPoolInitialized,
		event.KindPayeeRegistered,
		event.KindUsagePaymentProcessed,
		event.KindUsagePaymentProcessed,
	}, rec.events)
	assert.Equal(t, []uint64{90, 180}, rec.credited)
	assert.Equal(t, []int{2}, rec.batches)
	assert.Equal(t, []string{revshare.OpProcessUsagePayment}, rec.rejected)
}

func TestPluginDuplicateName(t *testing.T) {
	r := plugin.NewRegistry()
	require.NoError(t, r.Register(&recorder{}))
	require.Error(t, r.Register(&recorder{}))
	assert.Equal(t, 1, r.Count())
	assert.NotNil(t, r.Get("recorder"))
	assert.Nil(t, r.Get("missing"))
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnEvent(ctx context.Context, _ *event.Event) error {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
	}
	return nil
}

func TestPluginTimeout(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(10 * time.Millisecond)
	require.NoError(t, r.Register(slow{}))

	start := time.Now()
	r.EmitEvents(context.Background(), []*event.Event{{Kind: event.KindPoolInitialized}})
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
