package revshare

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/id"
	"github.com/xraph/revshare/payee"
	"github.com/xraph/revshare/store"
	"github.com/xraph/revshare/types"
	"github.com/xraph/revshare/wallet"
)

// Withdraw pays a payee's entire pending balance from the pool to the
// owner's wallet. Lifetime earnings are unchanged.
//
// Checks run in a fixed order: a zero balance fails with ErrNoFundsToWithdraw
// before ownership is considered, and ownership before pool funds.
func (e *Engine) Withdraw(ctx context.Context, cred auth.Credential, payeeID id.PayeeID) (*event.Event, error) {
	actor, err := e.authenticate(ctx, cred, WithdrawIntent(e.poolKey, payeeID))
	if err != nil {
		return nil, e.reject(ctx, OpWithdraw, cred.Identity, err)
	}

	py, err := e.loadPayee(ctx, payeeID)
	if err != nil {
		return nil, e.reject(ctx, OpWithdraw, actor, err)
	}

	amount := py.PendingBalance
	if amount == 0 {
		return nil, e.reject(ctx, OpWithdraw, actor, ErrNoFundsToWithdraw)
	}
	if py.Owner != actor {
		return nil, e.reject(ctx, OpWithdraw, actor, ErrUnauthorizedWithdrawal)
	}

	p, err := e.loadPool(ctx)
	if err != nil {
		return nil, e.reject(ctx, OpWithdraw, actor, err)
	}
	available, err := e.store.Balance(ctx, p.Account())
	if err != nil {
		return nil, e.reject(ctx, OpWithdraw, actor, err)
	}
	if available < amount {
		return nil, e.reject(ctx, OpWithdraw, actor,
			fmt.Errorf("%w: pool holds %d, payee is owed %d", ErrInsufficientPoolFunds, available, amount))
	}

	now := e.timestamp()
	py.PendingBalance = 0
	py.Touch(now)

	evt := event.New(event.KindEarningsWithdrawn, e.poolKey, actor, now)
	evt.PayeeID = py.ID
	evt.ExternalID = py.ExternalID
	evt.Wallet = py.Wallet()
	evt.Amount = amount

	cs := &store.Changeset{
		Payees:    []*payee.Payee{py},
		Transfers: []wallet.Transfer{{From: p.Account(), To: py.Wallet(), Amount: amount}},
		Events:    []*event.Event{evt},
	}
	if err := e.commit(ctx, cs); err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			err = fmt.Errorf("%w: %w", ErrInsufficientPoolFunds, err)
		}
		return nil, e.reject(ctx, OpWithdraw, actor, err)
	}

	e.logger.Info("earnings withdrawn",
		"payee_id", py.ID.String(),
		"wallet", py.Wallet(),
		"amount", amount,
		"amount_display", types.FormatMajor(amount, e.decimals),
	)

	e.plugins.EmitEvents(ctx, cs.Events)
	e.plugins.EmitEarningsWithdrawn(ctx, py, evt)
	return evt, nil
}
