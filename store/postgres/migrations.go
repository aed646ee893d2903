package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Escrow store.
var Migrations = migrate.NewGroup("escrow")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_escrow_accounts",
			Version: "20250601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS escrow_accounts (
    account_key             TEXT PRIMARY KEY,
    id                      TEXT NOT NULL DEFAULT '',
    consumer                TEXT NOT NULL,
    provider                TEXT NOT NULL,
    nonce                   BIGINT NOT NULL DEFAULT 0,
    balance                 BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    additional_info         TEXT NOT NULL DEFAULT '',
    tee_signer_acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
    refunds                 JSONB NOT NULL DEFAULT '{}',
    deliverables            JSONB NOT NULL DEFAULT '{}',
    deleted                 BOOLEAN NOT NULL DEFAULT FALSE,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_escrow_accounts_consumer ON escrow_accounts (consumer) WHERE NOT deleted;
CREATE INDEX IF NOT EXISTS idx_escrow_accounts_provider ON escrow_accounts (provider) WHERE NOT deleted;
CREATE INDEX IF NOT EXISTS idx_escrow_accounts_created ON escrow_accounts (created_at, account_key) WHERE NOT deleted;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS escrow_accounts`)
				return err
			},
		},
	)
}
