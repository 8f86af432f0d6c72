// Package payee defines the payee (artist) account record.
package payee

import (
	"context"

	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/id"
	"github.com/xraph/revshare/types"
	"github.com/xraph/revshare/wallet"
)

// MaxExternalIDLength bounds the external label in bytes (UTF-8 code units).
const MaxExternalIDLength = 64

// Payee tracks what a single owner has earned and not yet withdrawn.
//
// ExternalID is a free-form label matched by value when usage is credited.
// It is not unique: two owners may register the same label.
type Payee struct {
	types.Entity

	ID              id.PayeeID    `json:"id"`
	Owner           auth.Identity `json:"owner"`
	ExternalID      string        `json:"external_id"`
	TotalUsageUnits uint64        `json:"total_usage_units"`
	TotalEarnings   uint64        `json:"total_earnings"`
	PendingBalance  uint64        `json:"pending_balance"`
	IsVerified      bool          `json:"is_verified"`
	Version         uint64        `json:"version"`
}

// Wallet returns the account withdrawals are paid into.
func (p *Payee) Wallet() wallet.Account {
	return wallet.Account(p.Owner)
}

// Withdrawn returns the lifetime amount paid out to the owner.
func (p *Payee) Withdrawn() uint64 {
	return p.TotalEarnings - p.PendingBalance
}

// Clone returns a copy safe to mutate.
func (p *Payee) Clone() *Payee {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// ListOpts configures payee listing.
type ListOpts struct {
	ExternalID   string
	VerifiedOnly bool
	Limit        int
	Offset       int
}

// Store defines payee persistence reads. Writes go through store.Changeset.
type Store interface {
	GetPayee(ctx context.Context, payeeID id.PayeeID) (*Payee, error)
	GetPayeeByOwner(ctx context.Context, owner auth.Identity) (*Payee, error)
	ListPayees(ctx context.Context, opts ListOpts) ([]*Payee, error)
}
