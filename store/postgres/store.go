package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

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

// PostgreSQL error codes the store maps onto revshare errors.
const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Commit outcome reported by the guard CTE.
const (
	commitApplied = iota
	commitConflict
	commitInsufficientFunds
)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("revshare/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("revshare/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Pool Store ====================

func (s *Store) GetPool(ctx context.Context, key string) (*pool.Pool, error) {
	m := new(poolModel)
	err := s.pg.NewSelect(m).
		Where("key = $1", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, revshare.ErrPoolNotFound
		}
		return nil, fmt.Errorf("revshare/postgres: get pool: %w", err)
	}
	return fromPoolModel(m)
}

// ==================== Payee Store ====================

func (s *Store) GetPayee(ctx context.Context, payeeID id.PayeeID) (*payee.Payee, error) {
	m := new(payeeModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", payeeID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, revshare.ErrPayeeNotFound
		}
		return nil, fmt.Errorf("revshare/postgres: get payee: %w", err)
	}
	return fromPayeeModel(m)
}

func (s *Store) GetPayeeByOwner(ctx context.Context, owner auth.Identity) (*payee.Payee, error) {
	m := new(payeeModel)
	err := s.pg.NewSelect(m).
		Where("owner = $1", string(owner)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, revshare.ErrPayeeNotFound
		}
		return nil, fmt.Errorf("revshare/postgres: get payee by owner: %w", err)
	}
	return fromPayeeModel(m)
}

func (s *Store) ListPayees(ctx context.Context, opts payee.ListOpts) ([]*payee.Payee, error) {
	var models []payeeModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.ExternalID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("external_id = $%d", argIdx), opts.ExternalID)
	}
	if opts.VerifiedOnly {
		q = q.Where("is_verified")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revshare/postgres: list payees: %w", err)
	}

	result := make([]*payee.Payee, len(models))
	for i := range models {
		p, err := fromPayeeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Event Store ====================

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
	}
	if !opts.PayeeID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("payee_id = $%d", argIdx), opts.PayeeID.String())
	}
	if !opts.Since.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("occurred_at >= $%d", argIdx), opts.Since.UTC())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("seq ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revshare/postgres: list events: %w", err)
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Wallet Store ====================

func (s *Store) Balance(ctx context.Context, account wallet.Account) (uint64, error) {
	var raw string
	err := s.pg.NewRaw(`
		SELECT COALESCE((SELECT balance::text FROM revshare_balances WHERE account = $1), '0')
	`, string(account)).Scan(ctx, &raw)
	if err != nil {
		return 0, fmt.Errorf("revshare/postgres: balance: %w", err)
	}
	return types.ParseAmount(raw)
}

func (s *Store) Fund(ctx context.Context, account wallet.Account, amount uint64) error {
	var affected int64
	err := s.pg.NewRaw(`
		WITH funded AS (
			INSERT INTO revshare_balances (account, balance)
			VALUES ($1::text, $2::text::numeric)
			ON CONFLICT (account) DO UPDATE
			SET balance = revshare_balances.balance + EXCLUDED.balance, updated_at = NOW()
			RETURNING 1
		)
		SELECT count(*) FROM funded
	`, string(account), types.FormatAmount(amount)).Scan(ctx, &affected)
	if err != nil {
		return mapError("fund", err)
	}
	return nil
}

// ==================== Commit ====================

// Commit writes the changeset with one statement. A guard CTE locks every
// updated row and debited balance, re-checking versions and funds on the
// latest row versions; every write CTE is conditioned on the guard, so the
// statement either applies in full or changes nothing.
func (s *Store) Commit(ctx context.Context, cs *store.Changeset) error {
	if cs.IsEmpty() {
		return nil
	}

	postings, err := cs.Postings()
	if err != nil {
		return err
	}

	query, args := buildCommit(cs, postings)

	var status int
	if err := s.pg.NewRaw(query, args...).Scan(ctx, &status); err != nil {
		return mapCommitError(cs, err)
	}

	switch status {
	case commitApplied:
	case commitConflict:
		return fmt.Errorf("%w: changeset records moved since they were read", revshare.ErrConflict)
	case commitInsufficientFunds:
		return fmt.Errorf("%w: a debited account no longer covers its posting", revshare.ErrInsufficientBalance)
	default:
		return fmt.Errorf("revshare/postgres: commit: unexpected status %d", status)
	}

	if cs.Pool != nil {
		cs.Pool.Version++
	}
	for _, p := range cs.Payees {
		p.Version++
	}
	return nil
}

// params collects positional arguments for a raw statement.
type params struct {
	args []any
}

func (p *params) add(v any) string {
	p.args = append(p.args, v)
	return fmt.Sprintf("$%d", len(p.args))
}

func (p *params) text(v string) string { return p.add(v) + "::text" }

func (p *params) amount(v uint64) string { return p.add(types.FormatAmount(v)) + "::text::numeric" }

func (p *params) bigint(v int64) string { return p.add(v) + "::bigint" }

func (p *params) version(v uint64) string { return p.add(int64(v)) + "::bigint" } //nolint:gosec // versions stay far below 2^63

func buildCommit(cs *store.Changeset, postings []store.Posting) (string, []any) {
	p := &params{}
	var locks, funds []string
	var ctes []string

	if cs.Pool != nil {
		locks = append(locks, fmt.Sprintf(
			`(SELECT count(*) FROM (SELECT 1 FROM revshare_pools WHERE key = %s AND version = %s FOR UPDATE) AS l) = 1`,
			p.text(cs.Pool.Key), p.version(cs.Pool.Version)))
	}
	if len(cs.Payees) > 0 {
		pairs := make([]string, len(cs.Payees))
		for i, py := range cs.Payees {
			pairs[i] = fmt.Sprintf("(%s, %s)", p.text(py.ID.String()), p.version(py.Version))
		}
		locks = append(locks, fmt.Sprintf(
			`(SELECT count(*) FROM (SELECT 1 FROM revshare_payees WHERE (id, version) IN (%s) FOR UPDATE) AS l) = %d`,
			strings.Join(pairs, ", "), len(cs.Payees)))
	}

	var debits []store.Posting
	for _, posting := range postings {
		if posting.Debit > 0 {
			debits = append(debits, posting)
		}
	}
	if len(debits) > 0 {
		conds := make([]string, len(debits))
		for i, d := range debits {
			conds[i] = fmt.Sprintf("(account = %s AND balance >= %s)", p.text(string(d.Account)), p.amount(d.Debit))
		}
		funds = append(funds, fmt.Sprintf(
			`(SELECT count(*) FROM (SELECT 1 FROM revshare_balances WHERE %s FOR UPDATE) AS l) = %d`,
			strings.Join(conds, " OR "), len(debits)))
	}

	guard := fmt.Sprintf(`guard AS (
	SELECT CASE
		WHEN NOT (%s) THEN %d
		WHEN NOT (%s) THEN %d
		ELSE %d
	END AS status
)`, andAll(locks), commitConflict, andAll(funds), commitInsufficientFunds, commitApplied)
	ctes = append(ctes, guard)

	const ok = `EXISTS (SELECT 1 FROM guard WHERE status = 0)`

	if c := cs.CreatePool; c != nil {
		ctes = append(ctes, fmt.Sprintf(`create_pool AS (
	INSERT INTO revshare_pools (key, id, administrator, fee_percent, total_deposited, total_distributed, version, created_at, updated_at)
	SELECT %s, %s, %s, %s::smallint, %s, %s, %s, %s::timestamptz, %s::timestamptz WHERE %s
	RETURNING 1
)`, p.text(c.Key), p.text(c.ID.String()), p.text(string(c.Administrator)), p.add(int16(c.FeePercent)),
			p.amount(c.TotalDeposited), p.amount(c.TotalDistributed), p.version(c.Version),
			p.add(c.CreatedAt), p.add(c.UpdatedAt), ok))
	}

	if c := cs.CreatePayee; c != nil {
		ctes = append(ctes, fmt.Sprintf(`create_payee AS (
	INSERT INTO revshare_payees (id, owner, external_id, total_usage_units, total_earnings, pending_balance, is_verified, version, created_at, updated_at)
	SELECT %s, %s, %s, %s, %s, %s, %s::boolean, %s, %s::timestamptz, %s::timestamptz WHERE %s
	RETURNING 1
)`, p.text(c.ID.String()), p.text(string(c.Owner)), p.text(c.ExternalID),
			p.amount(c.TotalUsageUnits), p.amount(c.TotalEarnings), p.amount(c.PendingBalance),
			p.add(c.IsVerified), p.version(c.Version), p.add(c.CreatedAt), p.add(c.UpdatedAt), ok))
	}

	if u := cs.Pool; u != nil {
		ctes = append(ctes, fmt.Sprintf(`update_pool AS (
	UPDATE revshare_pools
	SET administrator = %s, total_deposited = %s, total_distributed = %s,
		updated_at = %s::timestamptz, version = version + 1
	WHERE key = %s AND version = %s AND %s
	RETURNING 1
)`, p.text(string(u.Administrator)), p.amount(u.TotalDeposited), p.amount(u.TotalDistributed),
			p.add(u.UpdatedAt), p.text(u.Key), p.version(u.Version), ok))
	}

	for i, u := range cs.Payees {
		ctes = append(ctes, fmt.Sprintf(`update_payee_%d AS (
	UPDATE revshare_payees
	SET total_usage_units = %s, total_earnings = %s, pending_balance = %s, is_verified = %s::boolean,
		updated_at = %s::timestamptz, version = version + 1
	WHERE id = %s AND version = %s AND %s
	RETURNING 1
)`, i, p.amount(u.TotalUsageUnits), p.amount(u.TotalEarnings), p.amount(u.PendingBalance), p.add(u.IsVerified),
			p.add(u.UpdatedAt), p.text(u.ID.String()), p.version(u.Version), ok))
	}

	for i, posting := range postings {
		if posting.Debit > 0 {
			ctes = append(ctes, fmt.Sprintf(`posting_%d AS (
	UPDATE revshare_balances SET balance = balance - %s, updated_at = NOW()
	WHERE account = %s AND %s
	RETURNING 1
)`, i, p.amount(posting.Debit), p.text(string(posting.Account)), ok))
			continue
		}
		ctes = append(ctes, fmt.Sprintf(`posting_%d AS (
	INSERT INTO revshare_balances (account, balance)
	SELECT %s, %s WHERE %s
	ON CONFLICT (account) DO UPDATE
	SET balance = revshare_balances.balance + EXCLUDED.balance, updated_at = NOW()
	RETURNING 1
)`, i, p.text(string(posting.Account)), p.amount(posting.Credit), ok))
	}

	if len(cs.Events) > 0 {
		rows := make([]string, len(cs.Events))
		for i, e := range cs.Events {
			rows[i] = fmt.Sprintf("(%d, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s::boolean, %s, %s::timestamptz)",
				i,
				p.text(e.ID.String()), p.text(string(e.Kind)), p.text(e.PoolKey), p.text(string(e.Actor)),
				p.text(payeeIDString(e.PayeeID)), p.text(e.ExternalID), p.text(string(e.Wallet)),
				p.amount(e.Amount), p.text(string(e.Source)), p.amount(e.UsageUnits), p.amount(e.Rate),
				p.amount(e.Gross), p.amount(e.Fee), p.amount(e.Net), p.add(e.Verified),
				p.bigint(e.Timestamp), p.add(e.OccurredAt))
		}
		ctes = append(ctes, fmt.Sprintf(`append_events AS (
	INSERT INTO revshare_events (id, kind, pool_key, actor, payee_id, external_id, wallet, amount, source, usage_units, rate, gross, fee, net, verified, timestamp, occurred_at)
	SELECT id, kind, pool_key, actor, payee_id, external_id, wallet, amount, source, usage_units, rate, gross, fee, net, verified, ts, occurred_at
	FROM (VALUES %s) AS v(ord, id, kind, pool_key, actor, payee_id, external_id, wallet, amount, source, usage_units, rate, gross, fee, net, verified, ts, occurred_at)
	WHERE %s
	ORDER BY ord
	RETURNING 1
)`, strings.Join(rows, ",\n\t\t"), ok))
	}

	query := "WITH " + strings.Join(ctes, ",\n") + "\nSELECT status FROM guard"
	return query, p.args
}

func andAll(conds []string) string {
	if len(conds) == 0 {
		return "TRUE"
	}
	return strings.Join(conds, " AND ")
}

// ==================== Helpers ====================

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func mapCommitError(cs *store.Changeset, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		switch {
		case cs.CreatePool != nil && pgErr.TableName == "revshare_pools":
			return fmt.Errorf("%w: %s", revshare.ErrPoolExists, cs.CreatePool.Key)
		case cs.CreatePayee != nil && pgErr.TableName == "revshare_payees":
			return fmt.Errorf("%w: owner %s", revshare.ErrPayeeExists, cs.CreatePayee.Owner)
		}
	}
	return mapError("commit", err)
}

func mapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeCheckViolation:
			return fmt.Errorf("revshare/postgres: %s: %w: %s", op, revshare.ErrArithmeticOverflow, pgErr.ConstraintName)
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("revshare/postgres: %s: %w: %s", op, revshare.ErrConflict, pgErr.Message)
		case codeUniqueViolation:
			return fmt.Errorf("revshare/postgres: %s: %w: %s", op, revshare.ErrAlreadyExists, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("revshare/postgres: %s: %w", op, err)
}
