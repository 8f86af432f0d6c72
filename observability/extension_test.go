package observability_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revshare"
	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/observability"
	"github.com/xraph/revshare/store/memory"
	"github.com/xraph/revshare/wallet"
)

func value(c observability.Counter) float64 {
	return testutil.ToFloat64(c.(prometheus.Collector))
}

func TestMetricsExtensionCountsLedgerActivity(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg, "test"))

	s := memory.New()
	e := revshare.New(s,
		revshare.WithLogger(slog.New(slog.DiscardHandler)),
		revshare.WithPlugin(metrics),
	)

	_, err := e.InitPool(ctx, auth.As("admin"), 10)
	require.NoError(t, err)
	p, err := e.RegisterPayee(ctx, auth.As("artist"), "artist-1")
	require.NoError(t, err)

	require.NoError(t, s.Fund(ctx, wallet.Account("sponsor"), 10_000))
	_, err = e.Deposit(ctx, auth.As("sponsor"), 10_000, event.SourceAdvertising)
	require.NoError(t, err)

	_, err = e.BatchProcess(ctx, auth.As("admin"), []revshare.UsageItem{
		{PayeeID: p.ID, ExternalID: "artist-1", Units: 10, Rate: 100},
		{PayeeID: p.ID, ExternalID: "artist-1", Units: 5, Rate: 100},
	})
	require.NoError(t, err)

	_, err = e.Withdraw(ctx, auth.As("artist"), p.ID)
	require.NoError(t, err)

	_, err = e.Withdraw(ctx, auth.As("someone"), p.ID)
	require.Error(t, err)
	_, err = e.VerifyPayee(ctx, auth.As("someone"), p.ID, true)
	require.ErrorIs(t, err, revshare.ErrUnauthorized)

	assert.InDelta(t, 1, value(metrics.PoolInitialized), 0)
	assert.InDelta(t, 1, value(metrics.PayeeRegistered), 0)
	assert.InDelta(t, 1, value(metrics.RevenueDeposited), 0)
	assert.InDelta(t, 2, value(metrics.UsagePayments), 0)
	assert.InDelta(t, 15, value(metrics.UsageUnits), 0)
	assert.InDelta(t, 1500, value(metrics.UsageGross), 0)
	assert.InDelta(t, 150, value(metrics.UsageFees), 0)
	assert.InDelta(t, 1, value(metrics.EarningsWithdrawn), 0)
	assert.InDelta(t, 2, value(metrics.OperationsRejected), 0)
	assert.InDelta(t, 1, value(metrics.AuthRejections), 0)

	count, err := testutil.GatherAndCount(reg, "test_revshare_usage_batch_size")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	a := observability.NewPrometheusFactory(reg, "")
	b := observability.NewPrometheusFactory(reg, "")

	a.Counter("revshare.usage.payments").Add(2)
	b.Counter("revshare.usage.payments").Inc()
	assert.Same(t, a.Counter("revshare.usage.payments"), a.Counter("revshare.usage.payments"))

	count, err := testutil.GatherAndCount(reg, "revshare_usage_payments")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.InDelta(t, 3, value(a.Counter("revshare.usage.payments")), 0)
}
