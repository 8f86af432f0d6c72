package revshare

import (
	"math"
	"testing"

	"github.com/xraph/revshare/id"
)

func TestAggregateUsage(t *testing.T) {
	a, b := id.NewPayeeID(), id.NewPayeeID()

	got := aggregateUsage([]UsageItem{
		{PayeeID: a, ExternalID: "a", Units: 2, Rate: 10},
		{PayeeID: b, ExternalID: "b", Units: 1, Rate: 10},
		{PayeeID: a, ExternalID: "a", Units: 3, Rate: 10},
		{PayeeID: a, ExternalID: "a", Units: 4, Rate: 20},
		{PayeeID: a, ExternalID: "other", Units: 1, Rate: 10},
	})

	want := []UsageItem{
		{PayeeID: a, ExternalID: "a", Units: 5, Rate: 10},
		{PayeeID: b, ExternalID: "b", Units: 1, Rate: 10},
		{PayeeID: a, ExternalID: "a", Units: 4, Rate: 20},
		{PayeeID: a, ExternalID: "other", Units: 1, Rate: 10},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestAggregateUsageOverflowSplits(t *testing.T) {
	a := id.NewPayeeID()

	got := aggregateUsage([]UsageItem{
		{PayeeID: a, ExternalID: "a", Units: math.MaxUint64, Rate: 1},
		{PayeeID: a, ExternalID: "a", Units: 1, Rate: 1},
		{PayeeID: a, ExternalID: "a", Units: 1, Rate: 1},
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].Units != math.MaxUint64 || got[1].Units != 2 {
		t.Errorf("unexpected units: %d, %d", got[0].Units, got[1].Units)
	}
}

func TestChunkUsage(t *testing.T) {
	items := make([]UsageItem, 120)

	chunks := chunkUsage(items, MaxBatchSize)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 50 || len(chunks[1]) != 50 || len(chunks[2]) != 20 {
		t.Errorf("unexpected chunk sizes: %d %d %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}

	if chunkUsage(nil, MaxBatchSize) != nil {
		t.Error("expected no chunks for empty input")
	}
}
