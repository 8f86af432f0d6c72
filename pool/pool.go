// Package pool defines the revenue pool ledger record.
package pool

import (
	"context"

	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/id"
	"github.com/xraph/revshare/types"
	"github.com/xraph/revshare/wallet"
)

// DefaultKey is the well-known address of a deployment's pool.
const DefaultKey = "default"

// Pool aggregates deposited and distributed revenue. The live balance it
// can pay out from sits in the wallet account returned by Account.
type Pool struct {
	types.Entity

	ID               id.PoolID     `json:"id"`
	Key              string        `json:"key"`
	Administrator    auth.Identity `json:"administrator"`
	FeePercent       uint8         `json:"fee_percent"`
	TotalDeposited   uint64        `json:"total_deposited"`
	TotalDistributed uint64        `json:"total_distributed"`
	Version          uint64        `json:"version"`
}

// Account returns the escrow account that holds the pool's funds.
func (p *Pool) Account() wallet.Account {
	return AccountFor(p.Key)
}

// AccountFor returns the escrow account for the pool with the given key.
func AccountFor(key string) wallet.Account {
	return wallet.Account("pool:" + key)
}

// Outstanding returns distributed value not yet covered by deposits.
// It is non-zero only when usage was credited beyond the revenue received.
func (p *Pool) Outstanding() uint64 {
	if p.TotalDistributed <= p.TotalDeposited {
		return 0
	}
	return p.TotalDistributed - p.TotalDeposited
}

// Clone returns a copy safe to mutate.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Store defines pool persistence reads. Writes go through store.Changeset.
type Store interface {
	GetPool(ctx context.Context, key string) (*Pool, error)
}
