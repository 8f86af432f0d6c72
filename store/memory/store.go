// Package memory provides an in-process Store for tests and single-node use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/revshare"
	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/id"
	"github.com/xraph/revshare/payee"
	"github.com/xraph/revshare/pool"
	"github.com/xraph/revshare/store"
	"github.com/xraph/revshare/types"
	"github.com/xraph/revshare/wallet"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps every record in maps guarded by one mutex. Reads and writes
// hand out copies, so callers never alias stored state.
type Store struct {
	mu     sync.RWMutex
	closed bool

	pools    map[string]*pool.Pool
	payees   map[id.PayeeID]*payee.Payee
	owners   map[auth.Identity]id.PayeeID
	events   []*event.Event
	balances map[wallet.Account]uint64
}

// New returns an empty memory store.
func New() *Store {
	return &Store{
		pools:    make(map[string]*pool.Pool),
		payees:   make(map[id.PayeeID]*payee.Payee),
		owners:   make(map[auth.Identity]id.PayeeID),
		events:   make([]*event.Event, 0),
		balances: make(map[wallet.Account]uint64),
	}
}

// ──────────────────────────────────────────────────
// Pool Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetPool(_ context.Context, key string) (*pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.pools[key]; ok {
		return p.Clone(), nil
	}
	return nil, revshare.ErrPoolNotFound
}

// ──────────────────────────────────────────────────
// Payee Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetPayee(_ context.Context, payeeID id.PayeeID) (*payee.Payee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.payees[payeeID]; ok {
		return p.Clone(), nil
	}
	return nil, revshare.ErrPayeeNotFound
}

func (s *Store) GetPayeeByOwner(_ context.Context, owner auth.Identity) (*payee.Payee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pid, ok := s.owners[owner]; ok {
		return s.payees[pid].Clone(), nil
	}
	return nil, revshare.ErrPayeeNotFound
}

func (s *Store) ListPayees(_ context.Context, opts payee.ListOpts) ([]*payee.Payee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payee.Payee, 0, len(s.payees))
	for _, p := range s.payees {
		if opts.ExternalID != "" && p.ExternalID != opts.ExternalID {
			continue
		}
		if opts.VerifiedOnly && !p.IsVerified {
			continue
		}
		result = append(result, p.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return page(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Event Store implementation
// ──────────────────────────────────────────────────

func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0)
	for _, e := range s.events {
		if opts.Matches(e) {
			cp := *e
			result = append(result, &cp)
		}
	}
	return page(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Wallet Store implementation
// ──────────────────────────────────────────────────

func (s *Store) Balance(_ context.Context, account wallet.Account) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.balances[account], nil
}

func (s *Store) Fund(_ context.Context, account wallet.Account, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return revshare.ErrStoreClosed
	}
	total, err := types.Add(s.balances[account], amount)
	if err != nil {
		return err
	}
	s.balances[account] = total
	return nil
}

// ──────────────────────────────────────────────────
// Commit
// ──────────────────────────────────────────────────

// Commit validates the whole changeset against current state before touching
// anything, then applies it under the same lock.
func (s *Store) Commit(_ context.Context, cs *store.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return revshare.ErrStoreClosed
	}

	if cs.CreatePool != nil {
		if _, exists := s.pools[cs.CreatePool.Key]; exists {
			return revshare.ErrPoolExists
		}
	}
	if cs.CreatePayee != nil {
		if _, exists := s.owners[cs.CreatePayee.Owner]; exists {
			return revshare.ErrPayeeExists
		}
		if _, exists := s.payees[cs.CreatePayee.ID]; exists {
			return revshare.ErrPayeeExists
		}
	}
	if cs.Pool != nil {
		cur, ok := s.pools[cs.Pool.Key]
		if !ok {
			return revshare.ErrPoolNotFound
		}
		if cur.Version != cs.Pool.Version {
			return fmt.Errorf("%w: pool %s at version %d, changeset has %d",
				revshare.ErrConflict, cs.Pool.Key, cur.Version, cs.Pool.Version)
		}
	}
	for _, p := range cs.Payees {
		cur, ok := s.payees[p.ID]
		if !ok {
			return revshare.ErrPayeeNotFound
		}
		if cur.Version != p.Version {
			return fmt.Errorf("%w: payee %s at version %d, changeset has %d",
				revshare.ErrConflict, p.ID, cur.Version, p.Version)
		}
	}

	postings, err := cs.Postings()
	if err != nil {
		return err
	}
	next := make(map[wallet.Account]uint64, len(postings))
	for _, posting := range postings {
		bal := s.balances[posting.Account]
		if posting.Debit > 0 {
			if bal < posting.Debit {
				return fmt.Errorf("%w: %s holds %d, needs %d",
					revshare.ErrInsufficientBalance, posting.Account, bal, posting.Debit)
			}
			next[posting.Account] = bal - posting.Debit
			continue
		}
		total, err := types.Add(bal, posting.Credit)
		if err != nil {
			return err
		}
		next[posting.Account] = total
	}

	// Everything checked; apply.
	if cs.CreatePool != nil {
		s.pools[cs.CreatePool.Key] = cs.CreatePool.Clone()
	}
	if cs.CreatePayee != nil {
		s.payees[cs.CreatePayee.ID] = cs.CreatePayee.Clone()
		s.owners[cs.CreatePayee.Owner] = cs.CreatePayee.ID
	}
	if cs.Pool != nil {
		cs.Pool.Version++
		s.pools[cs.Pool.Key] = cs.Pool.Clone()
	}
	for _, p := range cs.Payees {
		p.Version++
		s.payees[p.ID] = p.Clone()
	}
	for account, bal := range next {
		s.balances[account] = bal
	}
	for _, e := range cs.Events {
		cp := *e
		s.events = append(s.events, &cp)
	}

	return nil
}

// ──────────────────────────────────────────────────
// Store management
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return revshare.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	start := min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}
