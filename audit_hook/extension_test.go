package audithook_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revshare"
	audithook "github.com/xraph/revshare/audit_hook"
	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/store/memory"
)

type trail struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (tr *trail) record(_ context.Context, evt *audithook.AuditEvent) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, evt)
	return nil
}

func (tr *trail) actions() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]string, len(tr.events))
	for i, evt := range tr.events {
		out[i] = evt.Action
	}
	return out
}

func newEngine(t *testing.T, ext *audithook.Extension) *revshare.Engine {
	t.Helper()
	return revshare.New(memory.New(),
		revshare.WithLogger(slog.New(slog.DiscardHandler)),
		revshare.WithPlugin(ext),
	)
}

func TestAuditTrail(t *testing.T) {
	ctx := context.Background()
	tr := &trail{}
	e := newEngine(t, audithook.New(audithook.RecorderFunc(tr.record)))

	_, err := e.InitPool(ctx, auth.As("admin"), 10)
	require.NoError(t, err)
	p, err := e.RegisterPayee(ctx, auth.As("artist"), "artist-1")
	require.NoError(t, err)
	_, err = e.BatchProcess(ctx, auth.As("admin"), []revshare.UsageItem{
		{PayeeID: p.ID, ExternalID: "artist-1", Units: 4, Rate: 25},
	})
	require.NoError(t, err)
	_, err = e.ProcessUsagePayment(ctx, auth.As("artist"), revshare.UsageItem{
		PayeeID: p.ID, ExternalID: "artist-1", Units: 1, Rate: 1,
	})
	require.ErrorIs(t, err, revshare.ErrUnauthorized)
	_, err = e.Deposit(ctx, auth.As("sponsor"), 1, event.SourceAdvertising)
	require.ErrorIs(t, err, revshare.ErrInsufficientBalance)

	assert.Equal(t, []string{
		audithook.ActionPoolInitialized,
		audithook.ActionPayeeRegistered,
		audithook.ActionUsagePaymentProcessed,
		audithook.ActionBatchProcessed,
		audithook.ActionAccessDenied,
		audithook.ActionOperationRejected,
	}, tr.actions())

	tr.mu.Lock()
	defer tr.mu.Unlock()

	usage := tr.events[2]
	assert.Equal(t, audithook.ResourcePayee, usage.Resource)
	assert.Equal(t, p.ID.String(), usage.ResourceID)
	assert.Equal(t, "admin", usage.Actor)
	assert.Equal(t, uint64(100), usage.Metadata["gross"])
	assert.Equal(t, uint64(90), usage.Metadata["net"])

	denied := tr.events[4]
	assert.Equal(t, audithook.SeverityCritical, denied.Severity)
	assert.Equal(t, audithook.OutcomeFailure, denied.Outcome)
	assert.Equal(t, revshare.OpProcessUsagePayment, denied.Metadata["operation"])
	assert.NotEmpty(t, denied.Reason)

	rejected := tr.events[5]
	assert.Equal(t, audithook.CategoryRevenue, rejected.Category)
	assert.Equal(t, audithook.ResourcePool, rejected.Resource)
	assert.Equal(t, "sponsor", rejected.Actor)
}

func TestAuditActionFilters(t *testing.T) {
	ctx := context.Background()

	only := &trail{}
	e := newEngine(t, audithook.New(audithook.RecorderFunc(only.record),
		audithook.WithEnabledActions(audithook.ActionPayeeRegistered)))
	_, err := e.InitPool(ctx, auth.As("admin"), 10)
	require.NoError(t, err)
	_, err = e.RegisterPayee(ctx, auth.As("artist"), "artist-1")
	require.NoError(t, err)
	assert.Equal(t, []string{audithook.ActionPayeeRegistered}, only.actions())

	except := &trail{}
	e = newEngine(t, audithook.New(audithook.RecorderFunc(except.record),
		audithook.WithDisabledActions(audithook.ActionPoolInitialized)))
	_, err = e.InitPool(ctx, auth.As("admin"), 10)
	require.NoError(t, err)
	_, err = e.RegisterPayee(ctx, auth.As("artist"), "artist-1")
	require.NoError(t, err)
	assert.Equal(t, []string{audithook.ActionPayeeRegistered}, except.actions())
}

func TestAuditRecorderFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	ext := audithook.New(
		audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
			return errors.New("backend down")
		}),
		audithook.WithLogger(slog.New(slog.DiscardHandler)),
	)

	require.NoError(t, ext.OnEvent(ctx, event.New(event.KindPoolInitialized, "default", "admin", time.Now())))
}
