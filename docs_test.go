package revshare_test

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"testing"

	"github.com/xraph/revshare"
	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/store/memory"
	"github.com/xraph/revshare/wallet"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation run as described.
func TestDocumentationExamples(t *testing.T) {
	ctx := context.Background()

	t.Run("QuickStartExample", func(t *testing.T) {
		e := revshare.New(memory.New(), revshare.WithLogger(slog.New(slog.DiscardHandler)))
		if err := e.Start(ctx); err != nil {
			t.Fatalf("Failed to start engine: %v", err)
		}
		defer e.Stop() //nolint:errcheck // test cleanup

		if _, err := e.InitPool(ctx, auth.As("platform-admin"), 10); err != nil {
			t.Fatalf("Failed to init pool: %v", err)
		}
	})

	t.Run("CoreConceptsExample", func(t *testing.T) {
		s := memory.New()
		e := revshare.New(s, revshare.WithLogger(slog.New(slog.DiscardHandler)))
		admin := auth.As("platform-admin")

		p, err := e.InitPool(ctx, admin, 10)
		if err != nil {
			t.Fatalf("Failed to init pool: %v", err)
		}
		if p.Administrator != "platform-admin" {
			t.Errorf("Expected administrator platform-admin, got %s", p.Administrator)
		}

		artist, err := e.RegisterPayee(ctx, auth.As("artist"), "artist-1")
		if err != nil {
			t.Fatalf("Failed to register payee: %v", err)
		}

		if err := s.Fund(ctx, wallet.Account("ad-network"), 1_000_000_000); err != nil {
			t.Fatalf("Failed to fund sponsor: %v", err)
		}
		if _, err := e.Deposit(ctx, auth.As("ad-network"), 1_000_000_000, event.SourceAdvertising); err != nil {
			t.Fatalf("Failed to deposit: %v", err)
		}

		evt, err := e.ProcessUsagePayment(ctx, admin, revshare.UsageItem{
			PayeeID: artist.ID, ExternalID: "artist-1", Units: 1000, Rate: 1_000_000,
		})
		if err != nil {
			t.Fatalf("Failed to process usage: %v", err)
		}
		if evt.Gross != 1_000_000_000 || evt.Fee != 100_000_000 || evt.Net != 900_000_000 {
			t.Errorf("Unexpected split: gross %d fee %d net %d", evt.Gross, evt.Fee, evt.Net)
		}

		wd, err := e.Withdraw(ctx, auth.As("artist"), artist.ID)
		if err != nil {
			t.Fatalf("Failed to withdraw: %v", err)
		}
		if wd.Amount != 900_000_000 {
			t.Errorf("Expected withdrawal of 900000000, got %d", wd.Amount)
		}

		bal, err := e.Balance(ctx, wallet.Account("artist"))
		if err != nil {
			t.Fatalf("Failed to read balance: %v", err)
		}
		if bal != 900_000_000 {
			t.Errorf("Expected artist wallet to hold 900000000, got %d", bal)
		}
	})

	t.Run("RetryableConflictExample", func(t *testing.T) {
		if !revshare.IsRetryable(revshare.ErrConflict) {
			t.Error("ErrConflict must be retryable")
		}
		if revshare.IsRetryable(revshare.ErrUnauthorized) {
			t.Error("ErrUnauthorized must not be retryable")
		}
	})
}

func ExampleSplitFee() {
	split, err := revshare.SplitFee(1000, 1_000_000, 10)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(split.Gross, split.Fee, split.Net)
	fmt.Println(revshare.FormatMajor(split.Net, 9))
	// Output:
	// 1000000000 100000000 900000000
	// 0.900000000
}
