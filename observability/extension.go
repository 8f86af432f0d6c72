// Package observability provides a metrics extension for revshare that records
// ledger activity through a MetricFactory.
package observability

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/revshare"
	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/payee"
	"github.com/xraph/revshare/plugin"
	"github.com/xraph/revshare/pool"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                      = (*MetricsExtension)(nil)
	_ plugin.OnInit                      = (*MetricsExtension)(nil)
	_ plugin.OnPoolInitialized           = (*MetricsExtension)(nil)
	_ plugin.OnRevenueDeposited          = (*MetricsExtension)(nil)
	_ plugin.OnAdministrationTransferred = (*MetricsExtension)(nil)
	_ plugin.OnPayeeRegistered           = (*MetricsExtension)(nil)
	_ plugin.OnPayeeVerified             = (*MetricsExtension)(nil)
	_ plugin.OnUsagePaymentProcessed     = (*MetricsExtension)(nil)
	_ plugin.OnBatchProcessed            = (*MetricsExtension)(nil)
	_ plugin.OnEarningsWithdrawn         = (*MetricsExtension)(nil)
	_ plugin.OnOperationRejected         = (*MetricsExtension)(nil)
	_ plugin.OnUsageFlushed              = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide ledger metrics.
// Register it as an engine plugin to track revenue flow automatically.
// Amounts are observed in minor units.
type MetricsExtension struct {
	factory MetricFactory

	// Pool metrics
	PoolInitialized        Counter
	AdministrationTransfer Counter
	RevenueDeposited       Counter
	DepositAmount          Histogram

	// Payee metrics
	PayeeRegistered Counter
	PayeeVerified   Counter

	// Usage metrics
	UsagePayments     Counter
	UsageUnits        Counter
	UsageGross        Counter
	UsageFees         Counter
	BatchSize         Histogram
	BatchLatency      Histogram
	UsageFlushed      Counter
	UsageFlushLatency Histogram

	// Withdrawal metrics
	EarningsWithdrawn Counter
	WithdrawalAmount  Histogram

	// Error metrics
	OperationsRejected Counter
	AuthRejections     Counter
	StoreConflicts     Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use NewPrometheusFactory, or app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Pool metrics
		PoolInitialized:        factory.Counter("revshare.pool.initialized"),
		AdministrationTransfer: factory.Counter("revshare.pool.administration.transferred"),
		RevenueDeposited:       factory.Counter("revshare.revenue.deposited"),
		DepositAmount:          factory.Histogram("revshare.revenue.deposit_amount"),

		// Payee metrics
		PayeeRegistered: factory.Counter("revshare.payee.registered"),
		PayeeVerified:   factory.Counter("revshare.payee.verified"),

		// Usage metrics
		UsagePayments:     factory.Counter("revshare.usage.payments"),
		UsageUnits:        factory.Counter("revshare.usage.units"),
		UsageGross:        factory.Counter("revshare.usage.gross"),
		UsageFees:         factory.Counter("revshare.usage.fees"),
		BatchSize:         factory.Histogram("revshare.usage.batch.size"),
		BatchLatency:      factory.Histogram("revshare.usage.batch.latency_ms"),
		UsageFlushed:      factory.Counter("revshare.usage.flushed"),
		UsageFlushLatency: factory.Histogram("revshare.usage.flush.latency_ms"),

		// Withdrawal metrics
		EarningsWithdrawn: factory.Counter("revshare.earnings.withdrawn"),
		WithdrawalAmount:  factory.Histogram("revshare.earnings.withdrawal_amount"),

		// Error metrics
		OperationsRejected: factory.Counter("revshare.operations.rejected"),
		AuthRejections:     factory.Counter("revshare.operations.unauthorized"),
		StoreConflicts:     factory.Counter("revshare.store.conflicts"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Pool hooks
// ──────────────────────────────────────────────────

// OnPoolInitialized implements plugin.OnPoolInitialized.
func (m *MetricsExtension) OnPoolInitialized(_ context.Context, _ *pool.Pool) error {
	m.PoolInitialized.Inc()
	return nil
}

// OnRevenueDeposited implements plugin.OnRevenueDeposited.
func (m *MetricsExtension) OnRevenueDeposited(_ context.Context, _ *pool.Pool, evt *event.Event) error {
	m.RevenueDeposited.Inc()
	m.DepositAmount.Observe(float64(evt.Amount))
	return nil
}

// OnAdministrationTransferred implements plugin.OnAdministrationTransferred.
func (m *MetricsExtension) OnAdministrationTransferred(_ context.Context, _ *pool.Pool, _ *event.Event) error {
	m.AdministrationTransfer.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payee hooks
// ──────────────────────────────────────────────────

// OnPayeeRegistered implements plugin.OnPayeeRegistered.
func (m *MetricsExtension) OnPayeeRegistered(_ context.Context, _ *payee.Payee) error {
	m.PayeeRegistered.Inc()
	return nil
}

// OnPayeeVerified implements plugin.OnPayeeVerified.
func (m *MetricsExtension) OnPayeeVerified(_ context.Context, _ *payee.Payee) error {
	m.PayeeVerified.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsagePaymentProcessed implements plugin.OnUsagePaymentProcessed.
func (m *MetricsExtension) OnUsagePaymentProcessed(_ context.Context, _ *payee.Payee, evt *event.Event) error {
	m.UsagePayments.Inc()
	m.UsageUnits.Add(float64(evt.UsageUnits))
	m.UsageGross.Add(float64(evt.Gross))
	m.UsageFees.Add(float64(evt.Fee))
	return nil
}

// OnBatchProcessed implements plugin.OnBatchProcessed.
func (m *MetricsExtension) OnBatchProcessed(_ context.Context, items int, _ uint64, elapsed time.Duration) error {
	m.BatchSize.Observe(float64(items))
	m.BatchLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnUsageFlushed implements plugin.OnUsageFlushed.
func (m *MetricsExtension) OnUsageFlushed(_ context.Context, count int, elapsed time.Duration) error {
	m.UsageFlushed.Add(float64(count))
	m.UsageFlushLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnEarningsWithdrawn implements plugin.OnEarningsWithdrawn.
func (m *MetricsExtension) OnEarningsWithdrawn(_ context.Context, _ *payee.Payee, evt *event.Event) error {
	m.EarningsWithdrawn.Inc()
	m.WithdrawalAmount.Observe(float64(evt.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Error hooks
// ──────────────────────────────────────────────────

// OnOperationRejected implements plugin.OnOperationRejected.
func (m *MetricsExtension) OnOperationRejected(_ context.Context, _ string, _ auth.Identity, err error) error {
	m.OperationsRejected.Inc()
	switch {
	case revshare.IsAuthorizationError(err):
		m.AuthRejections.Inc()
	case errors.Is(err, revshare.ErrConflict):
		m.StoreConflicts.Inc()
	}
	return nil
}
