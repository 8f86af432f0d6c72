package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/id"
	"github.com/xraph/revshare/payee"
	"github.com/xraph/revshare/pool"
	"github.com/xraph/revshare/types"
	"github.com/xraph/revshare/wallet"
)

// Store is the unified storage interface for revshare records.
// Methods are declared explicitly rather than by embedding the per-record
// interfaces so each backend's surface reads in one place.
type Store interface {
	// Pool methods
	GetPool(ctx context.Context, key string) (*pool.Pool, error)

	// Payee methods
	GetPayee(ctx context.Context, payeeID id.PayeeID) (*payee.Payee, error)
	GetPayeeByOwner(ctx context.Context, owner auth.Identity) (*payee.Payee, error)
	ListPayees(ctx context.Context, opts payee.ListOpts) ([]*payee.Payee, error)

	// Event methods
	ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error)

	// Wallet methods
	Balance(ctx context.Context, account wallet.Account) (uint64, error)
	Fund(ctx context.Context, account wallet.Account, amount uint64) error

	// Commit applies a changeset atomically: every record, transfer and
	// event in it is persisted, or none is. Updated records must still be at
	// the Version they carry; otherwise Commit fails with an error wrapping
	// revshare.ErrConflict and nothing is written. On success the Version of
	// every updated record in cs is advanced to match the store.
	Commit(ctx context.Context, cs *Changeset) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Changeset is the unit of atomic work produced by one engine operation.
type Changeset struct {
	// CreatePool and CreatePayee insert new records. A record with the same
	// key (pool) or owner (payee) must not already exist.
	CreatePool  *pool.Pool
	CreatePayee *payee.Payee

	// Pool and Payees are updated records, compared on Version.
	Pool   *pool.Pool
	Payees []*payee.Payee

	Transfers []wallet.Transfer
	Events    []*event.Event
}

// IsEmpty reports whether the changeset would write nothing.
func (cs *Changeset) IsEmpty() bool {
	return cs.CreatePool == nil && cs.CreatePayee == nil && cs.Pool == nil &&
		len(cs.Payees) == 0 && len(cs.Transfers) == 0 && len(cs.Events) == 0
}

// Validate checks the changeset's internal consistency.
func (cs *Changeset) Validate() error {
	seen := make(map[id.PayeeID]struct{}, len(cs.Payees))
	for _, p := range cs.Payees {
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("store: payee %s updated twice in one changeset", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	for _, t := range cs.Transfers {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Posting is the net effect of a changeset's transfers on one account.
// Exactly one of Debit and Credit is non-zero.
type Posting struct {
	Account wallet.Account
	Debit   uint64
	Credit  uint64
}

// ErrPostingOverflow is returned when transfers to one account sum past uint64.
var ErrPostingOverflow = errors.New("store: posting overflow")

// Postings nets the transfers per account, ordered by account name so
// backends lock balances in a stable order.
func (cs *Changeset) Postings() ([]Posting, error) {
	debits := make(map[wallet.Account]uint64)
	credits := make(map[wallet.Account]uint64)

	for _, t := range cs.Transfers {
		d, err := types.Add(debits[t.From], t.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: debit %s: %w", ErrPostingOverflow, t.From, err)
		}
		debits[t.From] = d

		c, err := types.Add(credits[t.To], t.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: credit %s: %w", ErrPostingOverflow, t.To, err)
		}
		credits[t.To] = c
	}

	accounts := make([]wallet.Account, 0, len(debits)+len(credits))
	for a := range debits {
		accounts = append(accounts, a)
	}
	for a := range credits {
		if _, ok := debits[a]; !ok {
			accounts = append(accounts, a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	out := make([]Posting, 0, len(accounts))
	for _, a := range accounts {
		d, c := debits[a], credits[a]
		switch {
		case d > c:
			out = append(out, Posting{Account: a, Debit: d - c})
		case c > d:
			out = append(out, Posting{Account: a, Credit: c - d})
		}
	}
	return out, nil
}
