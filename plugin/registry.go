package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/payee"
	"github.com/xraph/revshare/pool"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                      []OnInit
	onShutdown                  []OnShutdown
	onPoolInitialized           []OnPoolInitialized
	onRevenueDeposited          []OnRevenueDeposited
	onAdministrationTransferred []OnAdministrationTransferred
	onPayeeRegistered           []OnPayeeRegistered
	onPayeeVerified             []OnPayeeVerified
	onUsagePaymentProcessed     []OnUsagePaymentProcessed
	onBatchProcessed            []OnBatchProcessed
	onEarningsWithdrawn         []OnEarningsWithdrawn
	onEvent                     []OnEvent
	onOperationRejected         []OnOperationRejected
	onUsageFlushed              []OnUsageFlushed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	add := func(ok bool, name string) bool {
		if ok {
			hooks = append(hooks, name)
		}
		return ok
	}

	if v, ok := p.(OnInit); add(ok, "OnInit") {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); add(ok, "OnShutdown") {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPoolInitialized); add(ok, "OnPoolInitialized") {
		r.onPoolInitialized = append(r.onPoolInitialized, v)
	}
	if v, ok := p.(OnRevenueDeposited); add(ok, "OnRevenueDeposited") {
		r.onRevenueDeposited = append(r.onRevenueDeposited, v)
	}
	if v, ok := p.(OnAdministrationTransferred); add(ok, "OnAdministrationTransferred") {
		r.onAdministrationTransferred = append(r.onAdministrationTransferred, v)
	}
	if v, ok := p.(OnPayeeRegistered); add(ok, "OnPayeeRegistered") {
		r.onPayeeRegistered = append(r.onPayeeRegistered, v)
	}
	if v, ok := p.(OnPayeeVerified); add(ok, "OnPayeeVerified") {
		r.onPayeeVerified = append(r.onPayeeVerified, v)
	}
	if v, ok := p.(OnUsagePaymentProcessed); add(ok, "OnUsagePaymentProcessed") {
		r.onUsagePaymentProcessed = append(r.onUsagePaymentProcessed, v)
	}
	if v, ok := p.(OnBatchProcessed); add(ok, "OnBatchProcessed") {
		r.onBatchProcessed = append(r.onBatchProcessed, v)
	}
	if v, ok := p.(OnEarningsWithdrawn); add(ok, "OnEarningsWithdrawn") {
		r.onEarningsWithdrawn = append(r.onEarningsWithdrawn, v)
	}
	if v, ok := p.(OnEvent); add(ok, "OnEvent") {
		r.onEvent = append(r.onEvent, v)
	}
	if v, ok := p.(OnOperationRejected); add(ok, "OnOperationRejected") {
		r.onOperationRejected = append(r.onOperationRejected, v)
	}
	if v, ok := p.(OnUsageFlushed); add(ok, "OnUsageFlushed") {
		r.onUsageFlushed = append(r.onUsageFlushed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	dispatch(ctx, r, snapshot(r, &r.onInit), "OnInit", func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	dispatch(ctx, r, snapshot(r, &r.onShutdown), "OnShutdown", func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitPoolInitialized emits a pool initialized event.
func (r *Registry) EmitPoolInitialized(ctx context.Context, p *pool.Pool) {
	dispatch(ctx, r, snapshot(r, &r.onPoolInitialized), "OnPoolInitialized", func(h OnPoolInitialized) error {
		return h.OnPoolInitialized(ctx, p)
	})
}

// EmitRevenueDeposited emits a revenue deposited event.
func (r *Registry) EmitRevenueDeposited(ctx context.Context, p *pool.Pool, evt *event.Event) {
	dispatch(ctx, r, snapshot(r, &r.onRevenueDeposited), "OnRevenueDeposited", func(h OnRevenueDeposited) error {
		return h.OnRevenueDeposited(ctx, p, evt)
	})
}

// EmitAdministrationTransferred emits an administration transferred event.
func (r *Registry) EmitAdministrationTransferred(ctx context.Context, p *pool.Pool, evt *event.Event) {
	dispatch(ctx, r, snapshot(r, &r.onAdministrationTransferred), "OnAdministrationTransferred", func(h OnAdministrationTransferred) error {
		return h.OnAdministrationTransferred(ctx, p, evt)
	})
}

// EmitPayeeRegistered emits a payee registered event.
func (r *Registry) EmitPayeeRegistered(ctx context.Context, p *payee.Payee) {
	dispatch(ctx, r, snapshot(r, &r.onPayeeRegistered), "OnPayeeRegistered", func(h OnPayeeRegistered) error {
		return h.OnPayeeRegistered(ctx, p)
	})
}

// EmitPayeeVerified emits a payee verified event.
func (r *Registry) EmitPayeeVerified(ctx context.Context, p *payee.Payee) {
	dispatch(ctx, r, snapshot(r, &r.onPayeeVerified), "OnPayeeVerified", func(h OnPayeeVerified) error {
		return h.OnPayeeVerified(ctx, p)
	})
}

// EmitUsagePaymentProcessed emits a usage payment processed event.
func (r *Registry) EmitUsagePaymentProcessed(ctx context.Context, p *payee.Payee, evt *event.Event) {
	dispatch(ctx, r, snapshot(r, &r.onUsagePaymentProcessed), "OnUsagePaymentProcessed", func(h OnUsagePaymentProcessed) error {
		return h.OnUsagePaymentProcessed(ctx, p, evt)
	})
}

// EmitBatchProcessed emits a batch processed event.
func (r *Registry) EmitBatchProcessed(ctx context.Context, items int, gross uint64, elapsed time.Duration) {
	dispatch(ctx, r, snapshot(r, &r.onBatchProcessed), "OnBatchProcessed", func(h OnBatchProcessed) error {
		return h.OnBatchProcessed(ctx, items, gross, elapsed)
	})
}

// EmitEarningsWithdrawn emits an earnings withdrawn event.
func (r *Registry) EmitEarningsWithdrawn(ctx context.Context, p *payee.Payee, evt *event.Event) {
	dispatch(ctx, r, snapshot(r, &r.onEarningsWithdrawn), "OnEarningsWithdrawn", func(h OnEarningsWithdrawn) error {
		return h.OnEarningsWithdrawn(ctx, p, evt)
	})
}

// EmitEvents passes committed events to OnEvent plugins in order.
func (r *Registry) EmitEvents(ctx context.Context, events []*event.Event) {
	hooks := snapshot(r, &r.onEvent)
	for _, evt := range events {
		dispatch(ctx, r, hooks, "OnEvent", func(h OnEvent) error {
			return h.OnEvent(ctx, evt)
		})
	}
}

// EmitOperationRejected emits an operation rejected event.
func (r *Registry) EmitOperationRejected(ctx context.Context, op string, actor auth.Identity, err error) {
	dispatch(ctx, r, snapshot(r, &r.onOperationRejected), "OnOperationRejected", func(h OnOperationRejected) error {
		return h.OnOperationRejected(ctx, op, actor, err)
	})
}

// EmitUsageFlushed emits a usage flushed event.
func (r *Registry) EmitUsageFlushed(ctx context.Context, count int, elapsed time.Duration) {
	dispatch(ctx, r, snapshot(r, &r.onUsageFlushed), "OnUsageFlushed", func(h OnUsageFlushed) error {
		return h.OnUsageFlushed(ctx, count, elapsed)
	})
}

func snapshot[T any](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

func dispatch[T Plugin](ctx context.Context, r *Registry, hooks []T, hook string, fn func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins never block the accounting path for longer than the timeout.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
