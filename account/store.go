package account

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Store persists accounts with reverse indexes by consumer and provider.
//
// Removing an account is a soft delete: the row leaves every listing and
// lookup, but the nonce it carried is retained and returned by AccountNonce
// so a re-created account can never accept an old signature.
type Store interface {
	// CreateAccount inserts a live account. It fails with ErrAlreadyExists
	// if a live account exists for the pair; a tombstone is replaced.
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, key Key) (*Account, error)
	UpdateAccount(ctx context.Context, a *Account) error
	// RemoveAccount tombstones the pair, keeping nonce. It reports whether
	// a live account existed.
	RemoveAccount(ctx context.Context, key Key, nonce uint64) (bool, error)
	// AccountNonce returns the nonce of the live account or its tombstone,
	// or zero if the pair was never created.
	AccountNonce(ctx context.Context, key Key) (uint64, error)

	ListAccounts(ctx context.Context, opts ListOpts) ([]*Account, int, error)
	ListAccountsByProvider(ctx context.Context, provider common.Address, opts ListOpts) ([]*Account, int, error)
	ListAccountsByConsumer(ctx context.Context, consumer common.Address, opts ListOpts) ([]*Account, int, error)
	// GetAccounts returns one entry per key, nil where no live account exists.
	GetAccounts(ctx context.Context, keys []Key) ([]*Account, error)
}
