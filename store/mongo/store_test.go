package mongo

import (
	"testing"
	"time"

	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/id"
	"github.com/xraph/revshare/payee"
	"github.com/xraph/revshare/pool"
)

func TestPayeeModelKeepsFullAmountRange(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	p := &payee.Payee{
		ID:              id.NewPayeeID(),
		Owner:           "artist",
		ExternalID:      "artist-1",
		TotalUsageUnits: 42,
		TotalEarnings:   ^uint64(0),
		PendingBalance:  ^uint64(0) - 1,
		IsVerified:      true,
		Version:         7,
	}
	p.CreatedAt, p.UpdatedAt = now, now

	m := toPayeeModel(p)
	if m.TotalEarnings != "18446744073709551615" {
		t.Fatalf("expected decimal max uint64, got %q", m.TotalEarnings)
	}

	got, err := fromPayeeModel(m)
	if err != nil {
		t.Fatalf("from model: %v", err)
	}
	if got.ID != p.ID || got.Owner != p.Owner || got.Version != p.Version {
		t.Fatalf("identity fields changed: %+v", got)
	}
	if got.TotalEarnings != p.TotalEarnings || got.PendingBalance != p.PendingBalance {
		t.Fatalf("amounts changed: earnings %d pending %d", got.TotalEarnings, got.PendingBalance)
	}
}

func TestPoolModelKeyedByPoolKey(t *testing.T) {
	p := &pool.Pool{ID: id.NewPoolID(), Key: pool.DefaultKey, Administrator: "admin", FeePercent: 30, Version: 2}

	m := toPoolModel(p)
	if m.Key != pool.DefaultKey || m.ID != p.ID.String() {
		t.Fatalf("unexpected keys: %+v", m)
	}

	got, err := fromPoolModel(m)
	if err != nil {
		t.Fatalf("from model: %v", err)
	}
	if got.FeePercent != 30 || got.Administrator != "admin" {
		t.Fatalf("unexpected pool: %+v", got)
	}
}

func TestEventDocumentsSequence(t *testing.T) {
	now := time.Now().UTC()
	events := []*event.Event{
		event.New(event.KindUsagePaymentProcessed, pool.DefaultKey, "admin", now),
		event.New(event.KindUsagePaymentProcessed, pool.DefaultKey, "admin", now),
		event.New(event.KindEarningsWithdrawn, pool.DefaultKey, "admin", now),
	}

	docs := eventDocuments(events, 12)
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	for i, want := range []int64{10, 11, 12} {
		m, ok := docs[i].(*eventModel)
		if !ok {
			t.Fatalf("document %d has type %T", i, docs[i])
		}
		if m.Seq != want {
			t.Errorf("document %d: expected seq %d, got %d", i, want, m.Seq)
		}
		if m.ID != events[i].ID.String() {
			t.Errorf("document %d: id mismatch", i)
		}
		if m.PayeeID != "" {
			t.Errorf("document %d: unset payee must be omitted", i)
		}
	}
}

func TestEventModelOptionalPayee(t *testing.T) {
	e := event.New(event.KindEarningsWithdrawn, pool.DefaultKey, "artist", time.Now().UTC())
	e.PayeeID = id.NewPayeeID()
	e.Amount = 900

	got, err := fromEventModel(toEventModel(e, 1))
	if err != nil {
		t.Fatalf("from model: %v", err)
	}
	if got.PayeeID != e.PayeeID || got.Amount != 900 || got.Kind != e.Kind {
		t.Fatalf("unexpected event: %+v", got)
	}
}
