// Package wallet models the value-holding accounts that revenue moves between.
//
// Balances are kept by the store. The engine never edits a balance directly;
// it describes Transfers that the store applies inside the same atomic commit
// as the ledger records they pay for.
package wallet

import (
	"context"
	"errors"
	"fmt"
)

// Account names a balance holder: a payee's owner identity, a depositor,
// or a pool's escrow account.
type Account string

// ErrInvalidTransfer is returned for transfers that move nothing to nowhere.
var ErrInvalidTransfer = errors.New("wallet: invalid transfer")

// Transfer moves Amount units from one account to another.
type Transfer struct {
	From   Account `json:"from"`
	To     Account `json:"to"`
	Amount uint64  `json:"amount"`
}

// Validate rejects empty or self-referencing transfers.
func (t Transfer) Validate() error {
	if t.From == "" || t.To == "" {
		return fmt.Errorf("%w: empty account", ErrInvalidTransfer)
	}
	if t.From == t.To {
		return fmt.Errorf("%w: %s to itself", ErrInvalidTransfer, t.From)
	}
	return nil
}

// Store defines the balance operations a backend provides.
type Store interface {
	// Balance returns the account's balance; unknown accounts hold zero.
	Balance(ctx context.Context, account Account) (uint64, error)

	// Fund credits external value into an account. This is the inflow edge
	// of the system, used by hosts to mirror on-ramp payments and by tests.
	Fund(ctx context.Context, account Account, amount uint64) error
}
