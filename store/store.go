package store

import (
	"context"

	"github.com/xraph/escrow/account"
)

// Store is the unified storage interface for Escrow. Backends persist
// accounts together with their refund ledger and deliverable journal, so
// every engine call commits with a single account write.
type Store interface {
	account.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
