package postgres

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/revshare"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/id"
	"github.com/xraph/revshare/payee"
	"github.com/xraph/revshare/pool"
	"github.com/xraph/revshare/store"
	"github.com/xraph/revshare/wallet"
)

var placeholder = regexp.MustCompile(`\$(\d+)`)

func maxPlaceholder(query string) int {
	highest := 0
	for _, m := range placeholder.FindAllStringSubmatch(query, -1) {
		var n int
		fmt.Sscanf(m[1], "%d", &n) //nolint:errcheck // regexp guarantees digits
		highest = max(highest, n)
	}
	return highest
}

func TestBuildCommitWithdrawal(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	py := &payee.Payee{ID: id.NewPayeeID(), Owner: "artist", ExternalID: "a", TotalEarnings: 900, Version: 3}
	evt := event.New(event.KindEarningsWithdrawn, pool.DefaultKey, "artist", now)
	evt.PayeeID = py.ID
	evt.Amount = 900

	cs := &store.Changeset{
		Payees:    []*payee.Payee{py},
		Transfers: []wallet.Transfer{{From: pool.AccountFor(pool.DefaultKey), To: py.Wallet(), Amount: 900}},
		Events:    []*event.Event{evt},
	}
	postings, err := cs.Postings()
	if err != nil {
		t.Fatalf("postings: %v", err)
	}

	query, args := buildCommit(cs, postings)

	if got := maxPlaceholder(query); got != len(args) {
		t.Fatalf("query references $%d but %d args were bound", got, len(args))
	}
	for _, want := range []string{
		"guard AS (",
		"FROM revshare_payees WHERE (id, version) IN",
		"FROM revshare_balances WHERE (account = ",
		"update_payee_0 AS (",
		"UPDATE revshare_balances SET balance = balance - ",
		"INSERT INTO revshare_balances (account, balance)",
		"append_events AS (",
		"SELECT status FROM guard",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query missing %q", want)
		}
	}
	if strings.Contains(query, "update_pool") {
		t.Error("pool untouched by the changeset must not be updated")
	}
	if !containsArg(args, "900") {
		t.Error("amounts must be bound as decimal strings")
	}
}

func TestBuildCommitCreatesOnly(t *testing.T) {
	now := time.Now().UTC()
	p := &pool.Pool{ID: id.NewPoolID(), Key: pool.DefaultKey, Administrator: "admin", FeePercent: 10, Version: 1}
	p.CreatedAt, p.UpdatedAt = now, now

	cs := &store.Changeset{
		CreatePool: p,
		Events:     []*event.Event{event.New(event.KindPoolInitialized, p.Key, "admin", now)},
	}
	query, args := buildCommit(cs, nil)

	if got := maxPlaceholder(query); got != len(args) {
		t.Fatalf("query references $%d but %d args were bound", got, len(args))
	}
	if !strings.Contains(query, "WHEN NOT (TRUE)") {
		t.Error("a changeset with nothing to lock must pass the guard")
	}
	if !strings.Contains(query, "create_pool AS (") {
		t.Error("query missing pool insert")
	}
}

func TestBuildCommitAmountsAtLimit(t *testing.T) {
	py := &payee.Payee{ID: id.NewPayeeID(), PendingBalance: ^uint64(0), TotalEarnings: ^uint64(0), Version: 1}
	cs := &store.Changeset{Payees: []*payee.Payee{py}}

	_, args := buildCommit(cs, nil)
	if !containsArg(args, "18446744073709551615") {
		t.Error("max uint64 must round-trip as its decimal form")
	}
}

func containsArg(args []any, want string) bool {
	for _, a := range args {
		if s, ok := a.(string); ok && s == want {
			return true
		}
	}
	return false
}

func TestMapCommitError(t *testing.T) {
	createPool := &store.Changeset{CreatePool: &pool.Pool{Key: pool.DefaultKey}}
	createPayee := &store.Changeset{CreatePayee: &payee.Payee{Owner: "artist"}}

	cases := []struct {
		name string
		cs   *store.Changeset
		err  error
		want error
	}{
		{
			name: "pool_exists",
			cs:   createPool,
			err:  &pgconn.PgError{Code: codeUniqueViolation, TableName: "revshare_pools"},
			want: revshare.ErrPoolExists,
		},
		{
			name: "payee_exists",
			cs:   createPayee,
			err:  fmt.Errorf("exec: %w", &pgconn.PgError{Code: codeUniqueViolation, TableName: "revshare_payees"}),
			want: revshare.ErrPayeeExists,
		},
		{
			name: "overflow",
			cs:   &store.Changeset{},
			err:  &pgconn.PgError{Code: codeCheckViolation, ConstraintName: "revshare_balances_balance_check"},
			want: revshare.ErrArithmeticOverflow,
		},
		{
			name: "serialization_failure",
			cs:   &store.Changeset{},
			err:  &pgconn.PgError{Code: codeSerializationFailure},
			want: revshare.ErrConflict,
		},
		{
			name: "deadlock",
			cs:   &store.Changeset{},
			err:  &pgconn.PgError{Code: codeDeadlockDetected},
			want: revshare.ErrConflict,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapCommitError(tc.cs, tc.err); !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	boom := errors.New("boom")
	if got := mapCommitError(&store.Changeset{}, boom); !errors.Is(got, boom) {
		t.Fatalf("unknown errors must stay wrapped, got %v", got)
	}
}
