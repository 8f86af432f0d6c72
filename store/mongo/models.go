package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/id"
	"github.com/xraph/revshare/payee"
	"github.com/xraph/revshare/pool"
	"github.com/xraph/revshare/types"
	"github.com/xraph/revshare/wallet"
)

// Amounts are stored as decimal strings; BSON has no unsigned 64-bit integer.

// ==================== Pool models ====================

type poolModel struct {
	grove.BaseModel `grove:"table:revshare_pools" bson:"-"`

	Key              string    `grove:"key,pk"            bson:"_id"`
	ID               string    `grove:"id"                bson:"id"`
	Administrator    string    `grove:"administrator"     bson:"administrator"`
	FeePercent       int32     `grove:"fee_percent"       bson:"fee_percent"`
	TotalDeposited   string    `grove:"total_deposited"   bson:"total_deposited"`
	TotalDistributed string    `grove:"total_distributed" bson:"total_distributed"`
	Version          int64     `grove:"version"           bson:"version"`
	CreatedAt        time.Time `grove:"created_at"        bson:"created_at"`
	UpdatedAt        time.Time `grove:"updated_at"        bson:"updated_at"`
}

func toPoolModel(p *pool.Pool) *poolModel {
	return &poolModel{
		Key:              p.Key,
		ID:               p.ID.String(),
		Administrator:    string(p.Administrator),
		FeePercent:       int32(p.FeePercent),
		TotalDeposited:   types.FormatAmount(p.TotalDeposited),
		TotalDistributed: types.FormatAmount(p.TotalDistributed),
		Version:          int64(p.Version), //nolint:gosec // versions stay far below 2^63
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func fromPoolModel(m *poolModel) (*pool.Pool, error) {
	poolID, err := id.ParsePoolID(m.ID)
	if err != nil {
		return nil, err
	}
	amounts, err := parseAmounts(m.TotalDeposited, m.TotalDistributed)
	if err != nil {
		return nil, err
	}

	return &pool.Pool{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:               poolID,
		Key:              m.Key,
		Administrator:    auth.Identity(m.Administrator),
		FeePercent:       uint8(m.FeePercent), //nolint:gosec // validated before insert
		TotalDeposited:   amounts[0],
		TotalDistributed: amounts[1],
		Version:          uint64(m.Version), //nolint:gosec // versions start at 1
	}, nil
}

// ==================== Payee models ====================

type payeeModel struct {
	grove.BaseModel `grove:"table:revshare_payees" bson:"-"`

	ID              string    `grove:"id,pk"             bson:"_id"`
	Owner           string    `grove:"owner"             bson:"owner"`
	ExternalID      string    `grove:"external_id"       bson:"external_id"`
	TotalUsageUnits string    `grove:"total_usage_units" bson:"total_usage_units"`
	TotalEarnings   string    `grove:"total_earnings"    bson:"total_earnings"`
	PendingBalance  string    `grove:"pending_balance"   bson:"pending_balance"`
	IsVerified      bool      `grove:"is_verified"       bson:"is_verified"`
	Version         int64     `grove:"version"           bson:"version"`
	CreatedAt       time.Time `grove:"created_at"        bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"        bson:"updated_at"`
}

func toPayeeModel(p *payee.Payee) *payeeModel {
	return &payeeModel{
		ID:              p.ID.String(),
		Owner:           string(p.Owner),
		ExternalID:      p.ExternalID,
		TotalUsageUnits: types.FormatAmount(p.TotalUsageUnits),
		TotalEarnings:   types.FormatAmount(p.TotalEarnings),
		PendingBalance:  types.FormatAmount(p.PendingBalance),
		IsVerified:      p.IsVerified,
		Version:         int64(p.Version), //nolint:gosec // versions stay far below 2^63
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func fromPayeeModel(m *payeeModel) (*payee.Payee, error) {
	payeeID, err := id.ParsePayeeID(m.ID)
	if err != nil {
		return nil, err
	}
	amounts, err := parseAmounts(m.TotalUsageUnits, m.TotalEarnings, m.PendingBalance)
	if err != nil {
		return nil, err
	}

	return &payee.Payee{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              payeeID,
		Owner:           auth.Identity(m.Owner),
		ExternalID:      m.ExternalID,
		TotalUsageUnits: amounts[0],
		TotalEarnings:   amounts[1],
		PendingBalance:  amounts[2],
		IsVerified:      m.IsVerified,
		Version:         uint64(m.Version), //nolint:gosec // versions start at 1
	}, nil
}

// ==================== Event models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:revshare_events" bson:"-"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	Seq        int64     `grove:"seq"         bson:"seq"`
	Kind       string    `grove:"kind"        bson:"kind"`
	PoolKey    string    `grove:"pool_key"    bson:"pool_key"`
	Actor      string    `grove:"actor"       bson:"actor,omitempty"`
	PayeeID    string    `grove:"payee_id"    bson:"payee_id,omitempty"`
	ExternalID string    `grove:"external_id" bson:"external_id,omitempty"`
	Wallet     string    `grove:"wallet"      bson:"wallet,omitempty"`
	Amount     string    `grove:"amount"      bson:"amount"`
	Source     string    `grove:"source"      bson:"source,omitempty"`
	UsageUnits string    `grove:"usage_units" bson:"usage_units"`
	Rate       string    `grove:"rate"        bson:"rate"`
	Gross      string    `grove:"gross"       bson:"gross"`
	Fee        string    `grove:"fee"         bson:"fee"`
	Net        string    `grove:"net"         bson:"net"`
	Verified   bool      `grove:"verified"    bson:"verified"`
	Timestamp  int64     `grove:"timestamp"   bson:"timestamp"`
	OccurredAt time.Time `grove:"occurred_at" bson:"occurred_at"`
}

func toEventModel(e *event.Event, seq int64) *eventModel {
	m := &eventModel{
		ID:         e.ID.String(),
		Seq:        seq,
		Kind:       string(e.Kind),
		PoolKey:    e.PoolKey,
		Actor:      string(e.Actor),
		ExternalID: e.ExternalID,
		Wallet:     string(e.Wallet),
		Amount:     types.FormatAmount(e.Amount),
		Source:     string(e.Source),
		UsageUnits: types.FormatAmount(e.UsageUnits),
		Rate:       types.FormatAmount(e.Rate),
		Gross:      types.FormatAmount(e.Gross),
		Fee:        types.FormatAmount(e.Fee),
		Net:        types.FormatAmount(e.Net),
		Verified:   e.Verified,
		Timestamp:  e.Timestamp,
		OccurredAt: e.OccurredAt,
	}
	if !e.PayeeID.IsNil() {
		m.PayeeID = e.PayeeID.String()
	}
	return m
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	eventID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}

	var payeeID id.PayeeID
	if m.PayeeID != "" {
		if payeeID, err = id.ParsePayeeID(m.PayeeID); err != nil {
			return nil, err
		}
	}

	amounts, err := parseAmounts(m.Amount, m.UsageUnits, m.Rate, m.Gross, m.Fee, m.Net)
	if err != nil {
		return nil, err
	}

	return &event.Event{
		ID:         eventID,
		Kind:       event.Kind(m.Kind),
		PoolKey:    m.PoolKey,
		Actor:      auth.Identity(m.Actor),
		PayeeID:    payeeID,
		ExternalID: m.ExternalID,
		Wallet:     wallet.Account(m.Wallet),
		Amount:     amounts[0],
		Source:     event.RevenueSource(m.Source),
		UsageUnits: amounts[1],
		Rate:       amounts[2],
		Gross:      amounts[3],
		Fee:        amounts[4],
		Net:        amounts[5],
		Verified:   m.Verified,
		Timestamp:  m.Timestamp,
		OccurredAt: m.OccurredAt,
	}, nil
}

// ==================== Balance models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:revshare_balances" bson:"-"`

	Account   string    `grove:"account,pk" bson:"_id"`
	Balance   string    `grove:"balance"    bson:"balance"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

// counterModel hands out event sequence numbers.
type counterModel struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

func parseAmounts(raw ...string) ([]uint64, error) {
	out := make([]uint64, len(raw))
	for i, r := range raw {
		if r == "" {
			continue
		}
		v, err := types.ParseAmount(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
