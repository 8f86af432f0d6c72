package postgres

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

// Amounts are NUMERIC(20,0) columns carried as decimal strings, which holds
// the whole uint64 range without a signed BIGINT.

// ==================== Pool models ====================

type poolModel struct {
	grove.BaseModel `grove:"table:revshare_pools"`

	Key              string    `grove:"key,pk"`
	ID               string    `grove:"id"`
	Administrator    string    `grove:"administrator"`
	FeePercent       int16     `grove:"fee_percent"`
	TotalDeposited   string    `grove:"total_deposited,type:numeric"`
	TotalDistributed string    `grove:"total_distributed,type:numeric"`
	Version          int64     `grove:"version"`
	CreatedAt        time.Time `grove:"created_at"`
	UpdatedAt        time.Time `grove:"updated_at"`
}

func fromPoolModel(m *poolModel) (*pool.Pool, error) {
	poolID, err := id.ParsePoolID(m.ID)
	if err != nil {
		return nil, err
	}
	deposited, err := types.ParseAmount(m.TotalDeposited)
	if err != nil {
		return nil, err
	}
	distributed, err := types.ParseAmount(m.TotalDistributed)
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
		FeePercent:       uint8(m.FeePercent), //nolint:gosec // bounded by a CHECK constraint
		TotalDeposited:   deposited,
		TotalDistributed: distributed,
		Version:          uint64(m.Version), //nolint:gosec // versions start at 1
	}, nil
}

// ==================== Payee models ====================

type payeeModel struct {
	grove.BaseModel `grove:"table:revshare_payees"`

	ID              string    `grove:"id,pk"`
	Owner           string    `grove:"owner"`
	ExternalID      string    `grove:"external_id"`
	TotalUsageUnits string    `grove:"total_usage_units,type:numeric"`
	TotalEarnings   string    `grove:"total_earnings,type:numeric"`
	PendingBalance  string    `grove:"pending_balance,type:numeric"`
	IsVerified      bool      `grove:"is_verified"`
	Version         int64     `grove:"version"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func fromPayeeModel(m *payeeModel) (*payee.Payee, error) {
	payeeID, err := id.ParsePayeeID(m.ID)
	if err != nil {
		return nil, err
	}
	units, err := types.ParseAmount(m.TotalUsageUnits)
	if err != nil {
		return nil, err
	}
	earnings, err := types.ParseAmount(m.TotalEarnings)
	if err != nil {
		return nil, err
	}
	pending, err := types.ParseAmount(m.PendingBalance)
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
		TotalUsageUnits: units,
		TotalEarnings:   earnings,
		PendingBalance:  pending,
		IsVerified:      m.IsVerified,
		Version:         uint64(m.Version), //nolint:gosec // versions start at 1
	}, nil
}

// ==================== Event models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:revshare_events"`

	Seq        int64     `grove:"seq,pk"`
	ID         string    `grove:"id"`
	Kind       string    `grove:"kind"`
	PoolKey    string    `grove:"pool_key"`
	Actor      string    `grove:"actor"`
	PayeeID    string    `grove:"payee_id"`
	ExternalID string    `grove:"external_id"`
	Wallet     string    `grove:"wallet"`
	Amount     string    `grove:"amount,type:numeric"`
	Source     string    `grove:"source"`
	UsageUnits string    `grove:"usage_units,type:numeric"`
	Rate       string    `grove:"rate,type:numeric"`
	Gross      string    `grove:"gross,type:numeric"`
	Fee        string    `grove:"fee,type:numeric"`
	Net        string    `grove:"net,type:numeric"`
	Verified   bool      `grove:"verified"`
	Timestamp  int64     `grove:"timestamp"`
	OccurredAt time.Time `grove:"occurred_at"`
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

// payeeIDString renders an optional payee reference as stored in events.
func payeeIDString(pid id.PayeeID) string {
	if pid.IsNil() {
		return ""
	}
	return pid.String()
}

func parseAmounts(raw ...string) ([]uint64, error) {
	out := make([]uint64, len(raw))
	for i, r := range raw {
		v, err := types.ParseAmount(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
