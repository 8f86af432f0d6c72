package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the revshare store.
var Migrations = migrate.NewGroup("revshare")

// amountDomain is the NUMERIC range every amount column is held to.
const amountDomain = `NUMERIC(20,0) NOT NULL DEFAULT 0 CHECK (%s >= 0 AND %s <= 18446744073709551615)`

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_revshare_pools",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS revshare_pools (
    key               TEXT PRIMARY KEY,
    id                TEXT NOT NULL UNIQUE,
    administrator     TEXT NOT NULL,
    fee_percent       SMALLINT NOT NULL CHECK (fee_percent BETWEEN 0 AND 30),
    total_deposited   `+amount("total_deposited")+`,
    total_distributed `+amount("total_distributed")+`,
    version           BIGINT NOT NULL DEFAULT 1,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS revshare_pools`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_revshare_payees",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS revshare_payees (
    id                TEXT PRIMARY KEY,
    owner             TEXT NOT NULL UNIQUE,
    external_id       TEXT NOT NULL DEFAULT '' CHECK (octet_length(external_id) <= 64),
    total_usage_units `+amount("total_usage_units")+`,
    total_earnings    `+amount("total_earnings")+`,
    pending_balance   `+amount("pending_balance")+`,
    is_verified       BOOLEAN NOT NULL DEFAULT FALSE,
    version           BIGINT NOT NULL DEFAULT 1,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (pending_balance <= total_earnings)
);

CREATE INDEX IF NOT EXISTS idx_revshare_payees_external_id ON revshare_payees (external_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS revshare_payees`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_revshare_events",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS revshare_events (
    seq         BIGSERIAL PRIMARY KEY,
    id          TEXT NOT NULL UNIQUE,
    kind        TEXT NOT NULL,
    pool_key    TEXT NOT NULL,
    actor       TEXT NOT NULL DEFAULT '',
    payee_id    TEXT NOT NULL DEFAULT '',
    external_id TEXT NOT NULL DEFAULT '',
    wallet      TEXT NOT NULL DEFAULT '',
    amount      `+amount("amount")+`,
    source      TEXT NOT NULL DEFAULT '',
    usage_units `+amount("usage_units")+`,
    rate        `+amount("rate")+`,
    gross       `+amount("gross")+`,
    fee         `+amount("fee")+`,
    net         `+amount("net")+`,
    verified    BOOLEAN NOT NULL DEFAULT FALSE,
    timestamp   BIGINT NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_revshare_events_kind ON revshare_events (kind, seq);
CREATE INDEX IF NOT EXISTS idx_revshare_events_payee ON revshare_events (payee_id, seq) WHERE payee_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS revshare_events`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_revshare_balances",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS revshare_balances (
    account    TEXT PRIMARY KEY,
    balance    `+amount("balance")+`,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS revshare_balances`)
				return err
			},
		},
	)
}

func amount(column string) string {
	return fmt.Sprintf(amountDomain, column, column)
}
