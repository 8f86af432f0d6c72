// Package event defines the append-only log of ledger state changes.
//
// Every committed operation appends one or more events in the same atomic
// unit as the records it changed. Indexers read them back with Store.ListEvents
// or receive them live through plugin hooks.
package event

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/id"
	"github.com/xraph/revshare/wallet"
)

// Kind names what happened.
type Kind string

// Event kinds.
const (
	KindPoolInitialized           Kind = "pool.initialized"
	KindPayeeRegistered           Kind = "payee.registered"
	KindPayeeVerified             Kind = "payee.verified"
	KindRevenueDeposited          Kind = "revenue.deposited"
	KindUsagePaymentProcessed     Kind = "usage_payment.processed"
	KindEarningsWithdrawn         Kind = "earnings.withdrawn"
	KindAdministrationTransferred Kind = "administration.transferred"
)

// RevenueSource classifies deposited revenue.
type RevenueSource string

// Revenue sources.
const (
	SourceAdvertising   RevenueSource = "advertising"
	SourceSubscription  RevenueSource = "subscription"
	SourceDirectFunding RevenueSource = "direct_funding"
)

// Valid reports whether s is a known source.
func (s RevenueSource) Valid() bool {
	switch s {
	case SourceAdvertising, SourceSubscription, SourceDirectFunding:
		return true
	}
	return false
}

// ParseRevenueSource parses a source name.
func ParseRevenueSource(s string) (RevenueSource, error) {
	src := RevenueSource(s)
	if !src.Valid() {
		return "", fmt.Errorf("event: unknown revenue source %q", s)
	}
	return src, nil
}

// Event is one entry in the log. Only the fields relevant to Kind are set.
type Event struct {
	ID      id.EventID    `json:"id"`
	Kind    Kind          `json:"kind"`
	PoolKey string        `json:"pool_key"`
	Actor   auth.Identity `json:"actor"`

	PayeeID    id.PayeeID     `json:"payee_id,omitzero"`
	ExternalID string         `json:"external_id,omitempty"`
	Wallet     wallet.Account `json:"wallet,omitempty"`

	Amount     uint64        `json:"amount,omitempty"`
	Source     RevenueSource `json:"source,omitempty"`
	UsageUnits uint64        `json:"usage_units,omitempty"`
	Rate       uint64        `json:"rate,omitempty"`
	Gross      uint64        `json:"gross,omitempty"`
	Fee        uint64        `json:"fee,omitempty"`
	Net        uint64        `json:"net,omitempty"`
	Verified   bool          `json:"verified,omitempty"`

	// Timestamp is Unix seconds, the resolution consumers index on.
	Timestamp  int64     `json:"timestamp"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New creates an event of the given kind stamped with now.
func New(kind Kind, poolKey string, actor auth.Identity, now time.Time) *Event {
	return &Event{
		ID:         id.NewEventID(),
		Kind:       kind,
		PoolKey:    poolKey,
		Actor:      actor,
		Timestamp:  now.Unix(),
		OccurredAt: now.UTC(),
	}
}

// ListOpts configures event listing. Results are oldest first.
type ListOpts struct {
	Kind    Kind
	PayeeID id.PayeeID
	Since   time.Time
	Limit   int
	Offset  int
}

// Matches reports whether e passes the filters in opts, ignoring paging.
func (o ListOpts) Matches(e *Event) bool {
	if o.Kind != "" && e.Kind != o.Kind {
		return false
	}
	if !o.PayeeID.IsNil() && e.PayeeID != o.PayeeID {
		return false
	}
	if !o.Since.IsZero() && e.OccurredAt.Before(o.Since) {
		return false
	}
	return true
}

// Store defines event log reads. Appends go through store.Changeset.
type Store interface {
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)
}
