// Package audithook bridges revshare ledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import any
// audit backend directly. Callers inject a RecorderFunc adapter that bridges
// to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/revshare"
	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnEvent             = (*Extension)(nil)
	_ plugin.OnBatchProcessed    = (*Extension)(nil)
	_ plugin.OnOperationRejected = (*Extension)(nil)
	_ plugin.OnUsageFlushed      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges committed ledger events and rejected operations to an
// audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnEvent implements plugin.OnEvent. Every committed ledger event becomes
// one audit record.
func (e *Extension) OnEvent(ctx context.Context, evt *event.Event) error {
	switch evt.Kind {
	case event.KindPoolInitialized:
		return e.record(ctx, ActionPoolInitialized, SeverityInfo, OutcomeSuccess,
			ResourcePool, evt.PoolKey, CategoryAdministration, evt.Actor, nil,
			"event_id", evt.ID.String(),
		)

	case event.KindAdministrationTransferred:
		return e.record(ctx, ActionAdministrationTransferred, SeverityWarning, OutcomeSuccess,
			ResourcePool, evt.PoolKey, CategoryAdministration, evt.Actor, nil,
			"event_id", evt.ID.String(),
			"new_administrator", string(evt.Wallet),
		)

	case event.KindRevenueDeposited:
		return e.record(ctx, ActionRevenueDeposited, SeverityInfo, OutcomeSuccess,
			ResourcePool, evt.PoolKey, CategoryRevenue, evt.Actor, nil,
			"event_id", evt.ID.String(),
			"amount", evt.Amount,
			"source", string(evt.Source),
		)

	case event.KindPayeeRegistered:
		return e.record(ctx, ActionPayeeRegistered, SeverityInfo, OutcomeSuccess,
			ResourcePayee, evt.PayeeID.String(), CategoryAdministration, evt.Actor, nil,
			"event_id", evt.ID.String(),
			"external_id", evt.ExternalID,
		)

	case event.KindPayeeVerified:
		return e.record(ctx, ActionPayeeVerified, SeverityInfo, OutcomeSuccess,
			ResourcePayee, evt.PayeeID.String(), CategoryAdministration, evt.Actor, nil,
			"event_id", evt.ID.String(),
			"verified", evt.Verified,
		)

	case event.KindUsagePaymentProcessed:
		return e.record(ctx, ActionUsagePaymentProcessed, SeverityInfo, OutcomeSuccess,
			ResourcePayee, evt.PayeeID.String(), CategoryDistribution, evt.Actor, nil,
			"event_id", evt.ID.String(),
			"external_id", evt.ExternalID,
			"usage_units", evt.UsageUnits,
			"rate", evt.Rate,
			"gross", evt.Gross,
			"fee", evt.Fee,
			"net", evt.Net,
		)

	case event.KindEarningsWithdrawn:
		return e.record(ctx, ActionEarningsWithdrawn, SeverityInfo, OutcomeSuccess,
			ResourcePayee, evt.PayeeID.String(), CategoryPayout, evt.Actor, nil,
			"event_id", evt.ID.String(),
			"wallet", string(evt.Wallet),
			"amount", evt.Amount,
		)
	}

	e.logger.Debug("audit_hook: unhandled event kind", "kind", evt.Kind)
	return nil
}

// OnBatchProcessed implements plugin.OnBatchProcessed.
func (e *Extension) OnBatchProcessed(ctx context.Context, items int, gross uint64, elapsed time.Duration) error {
	return e.record(ctx, ActionBatchProcessed, SeverityInfo, OutcomeSuccess,
		ResourceUsage, "", CategoryDistribution, "", nil,
		"items", items,
		"gross", gross,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnUsageFlushed implements plugin.OnUsageFlushed.
func (e *Extension) OnUsageFlushed(ctx context.Context, count int, elapsed time.Duration) error {
	return e.record(ctx, ActionUsageFlushed, SeverityInfo, OutcomeSuccess,
		ResourceUsage, "", CategoryDistribution, "", nil,
		"credited", count,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnOperationRejected implements plugin.OnOperationRejected. Authorization
// failures are recorded as access denials with a higher severity.
func (e *Extension) OnOperationRejected(ctx context.Context, op string, actor auth.Identity, err error) error {
	action, severity, category := ActionOperationRejected, SeverityWarning, categoryFor(op)
	if revshare.IsAuthorizationError(err) {
		action, severity, category = ActionAccessDenied, SeverityCritical, CategoryAccess
	}
	return e.record(ctx, action, severity, OutcomeFailure,
		resourceFor(op), "", category, actor, err,
		"operation", op,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	actor auth.Identity,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Actor:      string(actor),
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

func resourceFor(op string) string {
	switch op {
	case revshare.OpInitPool, revshare.OpDeposit, revshare.OpTransferAdministration:
		return ResourcePool
	case revshare.OpProcessUsagePayment, revshare.OpBatchProcess:
		return ResourceUsage
	default:
		return ResourcePayee
	}
}

func categoryFor(op string) string {
	switch op {
	case revshare.OpDeposit:
		return CategoryRevenue
	case revshare.OpProcessUsagePayment, revshare.OpBatchProcess:
		return CategoryDistribution
	case revshare.OpWithdraw:
		return CategoryPayout
	default:
		return CategoryAdministration
	}
}
