package revshare

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/id"
	"github.com/xraph/revshare/payee"
	"github.com/xraph/revshare/pool"
	"github.com/xraph/revshare/store"
	"github.com/xraph/revshare/types"
)

// UsageItem credits Units of usage at Rate per unit to a payee.
//
// ExternalID must equal the label stored on the payee. The check is by value
// only: it guards against crediting the wrong record by mistake, not against
// an administrator who supplies a matching label for someone else's account.
type UsageItem struct {
	PayeeID    id.PayeeID `json:"payee_id"`
	ExternalID string     `json:"external_id"`
	Units      uint64     `json:"units"`
	Rate       uint64     `json:"rate"`
}

// ProcessUsagePayment credits one usage item to a payee, net of the pool fee.
// Only the pool administrator may call it. The item's ExternalID must equal
// the payee's registered label; the match guards against crediting a stale
// or mistyped reference and does not authenticate the payee.
func (e *Engine) ProcessUsagePayment(ctx context.Context, cred auth.Credential, item UsageItem) (*event.Event, error) {
	actor, err := e.authenticate(ctx, cred, UsagePaymentIntent(e.poolKey, item))
	if err != nil {
		return nil, e.reject(ctx, OpProcessUsagePayment, cred.Identity, err)
	}

	events, err := e.settle(ctx, OpProcessUsagePayment, actor, []UsageItem{item})
	if err != nil {
		var itemErr *BatchItemError
		if errors.As(err, &itemErr) {
			err = itemErr.Err
		}
		return nil, e.reject(ctx, OpProcessUsagePayment, actor, err)
	}
	return events[0], nil
}

// BatchProcess credits up to MaxBatchSize usage items in order as one atomic
// unit. Items for the same payee accumulate. If any item fails the whole
// batch is rejected with a *BatchItemError naming it.
func (e *Engine) BatchProcess(ctx context.Context, cred auth.Credential, items []UsageItem) ([]*event.Event, error) {
	if len(items) > MaxBatchSize {
		return nil, e.reject(ctx, OpBatchProcess, cred.Identity, ValidationError{
			Field:   "items",
			Message: fmt.Sprintf("%d items exceeds %d", len(items), MaxBatchSize),
			Err:     ErrBatchTooLarge,
		})
	}

	actor, err := e.authenticate(ctx, cred, BatchProcessIntent(e.poolKey, items))
	if err != nil {
		return nil, e.reject(ctx, OpBatchProcess, cred.Identity, err)
	}

	if len(items) == 0 {
		return nil, nil
	}

	events, err := e.settle(ctx, OpBatchProcess, actor, items)
	if err != nil {
		return nil, e.reject(ctx, OpBatchProcess, actor, err)
	}
	return events, nil
}

// settle applies items against working copies of the pool and payees and
// commits them together. Nothing is written unless every item succeeds.
func (e *Engine) settle(ctx context.Context, op string, actor auth.Identity, items []UsageItem) ([]*event.Event, error) {
	start := time.Now()

	p, err := e.requireAdmin(ctx, actor)
	if err != nil {
		return nil, err
	}

	now := e.timestamp()
	working := make(map[id.PayeeID]*payee.Payee, len(items))
	touched := make([]*payee.Payee, 0, len(items))
	events := make([]*event.Event, 0, len(items))
	credited := make([]*payee.Payee, 0, len(items))
	var gross uint64

	for i, item := range items {
		py, ok := working[item.PayeeID]
		if !ok {
			py, err = e.loadPayee(ctx, item.PayeeID)
			if err != nil {
				return nil, &BatchItemError{Index: i, Err: err}
			}
			working[item.PayeeID] = py
			touched = append(touched, py)
		}

		evt, err := e.applyUsage(p, py, item, now)
		if err != nil {
			return nil, &BatchItemError{Index: i, Err: err}
		}
		if gross, err = types.Add(gross, evt.Gross); err != nil {
			return nil, &BatchItemError{Index: i, Err: err}
		}

		evt.Actor = actor
		events = append(events, evt)
		credited = append(credited, py)
	}

	p.Touch(now)
	for _, py := range touched {
		py.Touch(now)
	}

	cs := &store.Changeset{
		Pool:   p,
		Payees: touched,
		Events: events,
	}
	if err := e.commit(ctx, cs); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	e.logger.Debug("usage payments processed",
		"op", op,
		"items", len(items),
		"payees", len(touched),
		"gross", gross,
		"gross_display", types.FormatMajor(gross, e.decimals),
		"total_distributed", p.TotalDistributed,
		"elapsed_ms", elapsed.Milliseconds(),
	)

	e.plugins.EmitEvents(ctx, events)
	for i, evt := range events {
		e.plugins.EmitUsagePaymentProcessed(ctx, credited[i], evt)
	}
	if op == OpBatchProcess {
		e.plugins.EmitBatchProcessed(ctx, len(items), gross, elapsed)
	}
	return events, nil
}

// applyUsage credits one item to py and p in place. On error neither record
// has been modified.
func (e *Engine) applyUsage(p *pool.Pool, py *payee.Payee, item UsageItem, now time.Time) (*event.Event, error) {
	if py.ExternalID != item.ExternalID {
		return nil, fmt.Errorf("%w: payee %s is labelled %q, not %q", ErrInvalidPayee, py.ID, py.ExternalID, item.ExternalID)
	}

	split, err := types.SplitFee(item.Units, item.Rate, p.FeePercent)
	if err != nil {
		return nil, err
	}

	units, err := types.Add(py.TotalUsageUnits, item.Units)
	if err != nil {
		return nil, err
	}
	earnings, err := types.Add(py.TotalEarnings, split.Net)
	if err != nil {
		return nil, err
	}
	pending, err := types.Add(py.PendingBalance, split.Net)
	if err != nil {
		return nil, err
	}
	distributed, err := types.Add(p.TotalDistributed, split.Gross)
	if err != nil {
		return nil, err
	}
	if e.solvencyCheck && distributed > p.TotalDeposited {
		return nil, fmt.Errorf("%w: distributing %d would exceed %d deposited", ErrPoolInsolvent, distributed, p.TotalDeposited)
	}

	py.TotalUsageUnits = units
	py.TotalEarnings = earnings
	py.PendingBalance = pending
	p.TotalDistributed = distributed

	evt := event.New(event.KindUsagePaymentProcessed, p.Key, "", now)
	evt.PayeeID = py.ID
	evt.ExternalID = item.ExternalID
	evt.UsageUnits = item.Units
	evt.Rate = item.Rate
	evt.Gross = split.Gross
	evt.Fee = split.Fee
	evt.Net = split.Net
	return evt, nil
}
