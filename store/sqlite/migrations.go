package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Escrow store (SQLite).
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
    nonce                   INTEGER NOT NULL DEFAULT 0,
    balance                 INTEGER NOT NULL DEFAULT 0,
    additional_info         TEXT NOT NULL DEFAULT '',
    tee_signer_acknowledged INTEGER NOT NULL DEFAULT 0,
    refunds                 TEXT NOT NULL DEFAULT '{}',
    deliverables            TEXT NOT NULL DEFAULT '{}',
    deleted                 INTEGER NOT NULL DEFAULT 0,
    created_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_escrow_accounts_consumer ON escrow_accounts (consumer, deleted);
CREATE INDEX IF NOT EXISTS idx_escrow_accounts_provider ON escrow_accounts (provider, deleted);
CREATE INDEX IF NOT EXISTS idx_escrow_accounts_created ON escrow_accounts (deleted, created_at);
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
