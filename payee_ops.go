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
)

// RegisterPayee creates the caller's payee account under externalID.
// Each identity owns at most one account; labels are not unique.
func (e *Engine) RegisterPayee(ctx context.Context, cred auth.Credential, externalID string) (*payee.Payee, error) {
	if len(externalID) > payee.MaxExternalIDLength {
		return nil, e.reject(ctx, OpRegisterPayee, cred.Identity, ValidationError{
			Field:   "external_id",
			Message: fmt.Sprintf("%d bytes exceeds %d", len(externalID), payee.MaxExternalIDLength),
			Err:     ErrIDTooLong,
		})
	}

	actor, err := e.authenticate(ctx, cred, RegisterPayeeIntent(e.poolKey, externalID))
	if err != nil {
		return nil, e.reject(ctx, OpRegisterPayee, cred.Identity, err)
	}

	if _, err := e.store.GetPayeeByOwner(ctx, actor); err == nil {
		return nil, e.reject(ctx, OpRegisterPayee, actor, ErrPayeeExists)
	} else if !errors.Is(err, ErrPayeeNotFound) {
		return nil, e.reject(ctx, OpRegisterPayee, actor, err)
	}

	now := e.timestamp()
	p := &payee.Payee{
		Entity:     types.NewEntity(now),
		ID:         id.NewPayeeID(),
		Owner:      actor,
		ExternalID: externalID,
		Version:    1,
	}

	evt := event.New(event.KindPayeeRegistered, e.poolKey, actor, now)
	evt.PayeeID = p.ID
	evt.ExternalID = externalID
	evt.Wallet = p.Wallet()

	cs := &store.Changeset{
		CreatePayee: p,
		Events:      []*event.Event{evt},
	}
	if err := e.commit(ctx, cs); err != nil {
		return nil, e.reject(ctx, OpRegisterPayee, actor, err)
	}

	e.logger.Info("payee registered",
		"payee_id", p.ID.String(),
		"external_id", externalID,
		"owner", actor,
	)

	e.plugins.EmitEvents(ctx, cs.Events)
	e.plugins.EmitPayeeRegistered(ctx, p)
	return p, nil
}

// VerifyPayee sets a payee's verification flag. Only the pool administrator
// may call it. The flag is informational and never gates accounting.
func (e *Engine) VerifyPayee(ctx context.Context, cred auth.Credential, payeeID id.PayeeID, verified bool) (*payee.Payee, error) {
	actor, err := e.authenticate(ctx, cred, VerifyPayeeIntent(e.poolKey, payeeID, verified))
	if err != nil {
		return nil, e.reject(ctx, OpVerifyPayee, cred.Identity, err)
	}

	if _, err := e.requireAdmin(ctx, actor); err != nil {
		return nil, e.reject(ctx, OpVerifyPayee, actor, err)
	}

	p, err := e.loadPayee(ctx, payeeID)
	if err != nil {
		return nil, e.reject(ctx, OpVerifyPayee, actor, err)
	}

	now := e.timestamp()
	p.IsVerified = verified
	p.Touch(now)

	evt := event.New(event.KindPayeeVerified, e.poolKey, actor, now)
	evt.PayeeID = p.ID
	evt.ExternalID = p.ExternalID
	evt.Verified = verified

	cs := &store.Changeset{
		Payees: []*payee.Payee{p},
		Events: []*event.Event{evt},
	}
	if err := e.commit(ctx, cs); err != nil {
		return nil, e.reject(ctx, OpVerifyPayee, actor, err)
	}

	e.logger.Debug("payee verification updated",
		"payee_id", p.ID.String(),
		"verified", verified,
	)

	e.plugins.EmitEvents(ctx, cs.Events)
	e.plugins.EmitPayeeVerified(ctx, p)
	return p, nil
}
