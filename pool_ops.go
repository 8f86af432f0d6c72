package revshare

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/id"
	"github.com/xraph/revshare/pool"
	"github.com/xraph/revshare/store"
	"github.com/xraph/revshare/types"
	"github.com/xraph/revshare/wallet"
)

// Operation names reported to plugins and logs.
const (
	OpInitPool               = "init_pool"
	OpRegisterPayee          = "register_payee"
	OpDeposit                = "deposit"
	OpProcessUsagePayment    = "process_usage_payment"
	OpBatchProcess           = "batch_process"
	OpWithdraw               = "withdraw"
	OpTransferAdministration = "transfer_administration"
	OpVerifyPayee            = "verify_payee"
)

// InitPool creates the engine's pool with the caller as administrator.
// The fee is fixed for the life of the pool.
func (e *Engine) InitPool(ctx context.Context, cred auth.Credential, feePercent uint8) (*pool.Pool, error) {
	if feePercent > types.MaxFeePercent {
		return nil, e.reject(ctx, OpInitPool, cred.Identity, ValidationError{
			Field:   "fee_percent",
			Message: fmt.Sprintf("%d exceeds %d", feePercent, types.MaxFeePercent),
			Err:     ErrInvalidFeePercent,
		})
	}

	actor, err := e.authenticate(ctx, cred, InitPoolIntent(e.poolKey, feePercent))
	if err != nil {
		return nil, e.reject(ctx, OpInitPool, cred.Identity, err)
	}

	now := e.timestamp()
	p := &pool.Pool{
		Entity:        types.NewEntity(now),
		ID:            id.NewPoolID(),
		Key:           e.poolKey,
		Administrator: actor,
		FeePercent:    feePercent,
		Version:       1,
	}

	evt := event.New(event.KindPoolInitialized, e.poolKey, actor, now)
	cs := &store.Changeset{
		CreatePool: p,
		Events:     []*event.Event{evt},
	}
	if err := e.commit(ctx, cs); err != nil {
		return nil, e.reject(ctx, OpInitPool, actor, err)
	}

	e.logger.Info("revenue pool initialized",
		"pool_key", p.Key,
		"pool_id", p.ID.String(),
		"administrator", actor,
		"fee_percent", feePercent,
	)

	e.plugins.EmitEvents(ctx, cs.Events)
	e.plugins.EmitPoolInitialized(ctx, p)
	return p, nil
}

// Deposit moves amount from the caller's wallet into the pool and records it
// as revenue from source. Zero-amount deposits are accepted and logged.
func (e *Engine) Deposit(ctx context.Context, cred auth.Credential, amount uint64, source event.RevenueSource) (*event.Event, error) {
	if !source.Valid() {
		return nil, e.reject(ctx, OpDeposit, cred.Identity, ValidationError{
			Field:   "source",
			Message: fmt.Sprintf("unknown revenue source %q", source),
		})
	}

	actor, err := e.authenticate(ctx, cred, DepositIntent(e.poolKey, amount, source))
	if err != nil {
		return nil, e.reject(ctx, OpDeposit, cred.Identity, err)
	}

	p, err := e.loadPool(ctx)
	if err != nil {
		return nil, e.reject(ctx, OpDeposit, actor, err)
	}

	from := wallet.Account(actor)
	if amount > 0 {
		balance, err := e.store.Balance(ctx, from)
		if err != nil {
			return nil, e.reject(ctx, OpDeposit, actor, err)
		}
		if balance < amount {
			return nil, e.reject(ctx, OpDeposit, actor,
				fmt.Errorf("%w: %s holds %d, deposit needs %d", ErrInsufficientBalance, from, balance, amount))
		}
	}

	total, err := types.Add(p.TotalDeposited, amount)
	if err != nil {
		return nil, e.reject(ctx, OpDeposit, actor, err)
	}

	now := e.timestamp()
	p.TotalDeposited = total
	p.Touch(now)

	evt := event.New(event.KindRevenueDeposited, e.poolKey, actor, now)
	evt.Wallet = from
	evt.Amount = amount
	evt.Source = source

	cs := &store.Changeset{
		Pool:   p,
		Events: []*event.Event{evt},
	}
	if amount > 0 {
		cs.Transfers = []wallet.Transfer{{From: from, To: p.Account(), Amount: amount}}
	}
	if err := e.commit(ctx, cs); err != nil {
		return nil, e.reject(ctx, OpDeposit, actor, err)
	}

	e.logger.Debug("revenue deposited",
		"pool_key", p.Key,
		"depositor", actor,
		"amount", amount,
		"amount_display", types.FormatMajor(amount, e.decimals),
		"source", source,
		"total_deposited", p.TotalDeposited,
	)

	e.plugins.EmitEvents(ctx, cs.Events)
	e.plugins.EmitRevenueDeposited(ctx, p, evt)
	return evt, nil
}

// TransferAdministration hands the pool to a new administrator. Only the
// current administrator may call it.
func (e *Engine) TransferAdministration(ctx context.Context, cred auth.Credential, newAdmin auth.Identity) (*pool.Pool, error) {
	if newAdmin == "" {
		return nil, e.reject(ctx, OpTransferAdministration, cred.Identity, ValidationError{
			Field:   "administrator",
			Message: "required",
		})
	}

	actor, err := e.authenticate(ctx, cred, TransferAdministrationIntent(e.poolKey, newAdmin))
	if err != nil {
		return nil, e.reject(ctx, OpTransferAdministration, cred.Identity, err)
	}

	p, err := e.requireAdmin(ctx, actor)
	if err != nil {
		return nil, e.reject(ctx, OpTransferAdministration, actor, err)
	}

	now := e.timestamp()
	previous := p.Administrator
	p.Administrator = newAdmin
	p.Touch(now)

	evt := event.New(event.KindAdministrationTransferred, e.poolKey, actor, now)
	evt.Wallet = wallet.Account(newAdmin)

	cs := &store.Changeset{
		Pool:   p,
		Events: []*event.Event{evt},
	}
	if err := e.commit(ctx, cs); err != nil {
		return nil, e.reject(ctx, OpTransferAdministration, actor, err)
	}

	e.logger.Info("pool administration transferred",
		"pool_key", p.Key,
		"from", previous,
		"to", newAdmin,
	)

	e.plugins.EmitEvents(ctx, cs.Events)
	e.plugins.EmitAdministrationTransferred(ctx, p, evt)
	return p, nil
}

// requireAdmin loads the pool and checks that actor administers it.
func (e *Engine) requireAdmin(ctx context.Context, actor auth.Identity) (*pool.Pool, error) {
	p, err := e.loadPool(ctx)
	if err != nil {
		return nil, err
	}
	if p.Administrator != actor {
		return nil, ErrUnauthorized
	}
	return p, nil
}

// PoolExists reports whether the engine's pool has been initialized.
func (e *Engine) PoolExists(ctx context.Context) (bool, error) {
	_, err := e.store.GetPool(ctx, e.poolKey)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrPoolNotFound):
		return false, nil
	default:
		return false, err
	}
}
