// Package plugin provides the extension points of the revshare engine.
// Plugins hook into lifecycle and ledger events; every ledger hook runs only
// after the change it describes has been committed.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/payee"
	"github.com/xraph/revshare/pool"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Pool hooks
// ──────────────────────────────────────────────────

// OnPoolInitialized is called after a pool is created.
type OnPoolInitialized interface {
	Plugin
	OnPoolInitialized(ctx context.Context, p *pool.Pool) error
}

// OnRevenueDeposited is called after revenue lands in the pool.
type OnRevenueDeposited interface {
	Plugin
	OnRevenueDeposited(ctx context.Context, p *pool.Pool, evt *event.Event) error
}

// OnAdministrationTransferred is called after the pool changes administrator.
type OnAdministrationTransferred interface {
	Plugin
	OnAdministrationTransferred(ctx context.Context, p *pool.Pool, evt *event.Event) error
}

// ──────────────────────────────────────────────────
// Payee hooks
// ──────────────────────────────────────────────────

// OnPayeeRegistered is called after a payee account is created.
type OnPayeeRegistered interface {
	Plugin
	OnPayeeRegistered(ctx context.Context, p *payee.Payee) error
}

// OnPayeeVerified is called after a payee's verification flag changes.
type OnPayeeVerified interface {
	Plugin
	OnPayeeVerified(ctx context.Context, p *payee.Payee) error
}

// OnUsagePaymentProcessed is called once per credited usage item,
// including each item of a batch.
type OnUsagePaymentProcessed interface {
	Plugin
	OnUsagePaymentProcessed(ctx context.Context, p *payee.Payee, evt *event.Event) error
}

// OnBatchProcessed is called after a batch commits.
type OnBatchProcessed interface {
	Plugin
	OnBatchProcessed(ctx context.Context, items int, gross uint64, elapsed time.Duration) error
}

// OnEarningsWithdrawn is called after a payee withdraws.
type OnEarningsWithdrawn interface {
	Plugin
	OnEarningsWithdrawn(ctx context.Context, p *payee.Payee, evt *event.Event) error
}

// ──────────────────────────────────────────────────
// Log and failure hooks
// ──────────────────────────────────────────────────

// OnEvent receives every committed event in log order. Indexers use it.
type OnEvent interface {
	Plugin
	OnEvent(ctx context.Context, evt *event.Event) error
}

// OnOperationRejected is called when an operation fails before or during commit.
type OnOperationRejected interface {
	Plugin
	OnOperationRejected(ctx context.Context, op string, actor auth.Identity, err error) error
}

// OnUsageFlushed is called after the usage feed flushes buffered items.
type OnUsageFlushed interface {
	Plugin
	OnUsageFlushed(ctx context.Context, count int, elapsed time.Duration) error
}
