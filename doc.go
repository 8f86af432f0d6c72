// Package revshare provides a usage-based revenue distribution ledger for
// Go applications.
//
// A platform deposits revenue into a single pool; registered payees (artists,
// rights holders) are credited from the pool in proportion to metered usage,
// net of a platform fee, and withdraw their accumulated earnings to their own
// wallets. Revshare is designed as a library, not a service. It provides:
//
//   - Checked unsigned 64-bit arithmetic on every amount
//   - Single-item and all-or-nothing batch usage crediting
//   - An optional buffered usage feed with periodic batch flushes
//   - Atomic, version-checked commits across memory, PostgreSQL and MongoDB
//   - An ordered event log and plugin hooks for metrics and audit trails
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/revshare"
//	    "github.com/xraph/revshare/auth"
//	    "github.com/xraph/revshare/store/memory"
//	)
//
//	e := revshare.New(memory.New())
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
//	admin := auth.As("platform-admin")
//	if _, err := e.InitPool(ctx, admin, 10); err != nil {
//	    log.Fatal(err)
//	}
//
// # Core Concepts
//
// The pool is created once, by its first caller, who becomes administrator.
// The fee percent (0 to 30) is fixed at initialization:
//
//	p, err := e.InitPool(ctx, admin, 10)
//
// Payees register themselves with an external label that must be repeated on
// every usage payment:
//
//	artist, err := e.RegisterPayee(ctx, auth.As("artist"), "artist-1")
//
// The administrator credits usage. Gross is units times rate, the fee is
// gross times the fee percent over 100, rounded down, and the payee is
// credited the rest:
//
//	evt, err := e.ProcessUsagePayment(ctx, admin, revshare.UsageItem{
//	    PayeeID: artist.ID, ExternalID: "artist-1", Units: 1000, Rate: 1_000_000,
//	})
//
// Payees withdraw their whole pending balance from the pool wallet:
//
//	evt, err := e.Withdraw(ctx, auth.As("artist"), artist.ID)
//
// # Consistency
//
// The engine keeps no locks around accounting. Each operation reads the
// records it needs, computes the new state on copies and commits it as one
// changeset. A record that moved in between fails the commit with
// ErrConflict, leaving the store unchanged; see IsRetryable.
//
// # TypeID
//
// Pools, payees and events use TypeID identifiers:
//
//	pool_01h2xcejqtf2nbrexx3vqjhp41   // Pool ID
//	payee_01h2xcejqtf2nbrexx3vqjhp41  // Payee ID
//	evt_01h455vb4pex5vsknk084sn02q    // Event ID
package revshare
