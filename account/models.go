// Package account defines the escrow account aggregate and its store contract.
//
// One Account exists per (consumer, provider) pair. It owns the escrowed
// balance, the refund sub-ledger, the deliverable journal, and the
// authorization metadata that gates settlement.
package account

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/escrow/deliverable"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/refund"
	"github.com/xraph/escrow/types"
)

const (
	// MaxInfoLength bounds AdditionalInfo in bytes.
	MaxInfoLength = 4096

	// MaxBatchSize bounds the consumers accepted by one batch lookup.
	MaxBatchSize = 500
)

// Account errors.
var (
	ErrNotFound                 = errors.New("escrow: account not found")
	ErrAlreadyExists            = errors.New("escrow: account already exists")
	ErrInfoTooLong              = errors.New("escrow: additional info too long")
	ErrNonZeroBalance           = errors.New("escrow: balance is not zero")
	ErrBatchTooLarge            = errors.New("escrow: batch too large")
	ErrInvalidAmount            = errors.New("escrow: invalid amount")
	ErrStaleNonce               = errors.New("escrow: nonce already used")
	ErrTEESignerNotAcknowledged = errors.New("escrow: tee signer not acknowledged")
	ErrContentHashMismatch      = errors.New("escrow: content hash mismatch")
)

// Key is the composite primary key of an account.
type Key struct {
	Consumer common.Address `json:"consumer"`
	Provider common.Address `json:"provider"`
}

// NewKey builds a key from a consumer and provider address.
func NewKey(consumer, provider common.Address) Key {
	return Key{Consumer: consumer, Provider: provider}
}

// String returns "consumer/provider" in checksummed hex. Persistent stores
// use it as the row key.
func (k Key) String() string {
	return k.Consumer.Hex() + "/" + k.Provider.Hex()
}

// Account is the escrow record of one consumer with one provider.
type Account struct {
	types.Entity
	ID                    id.AccountID        `json:"id"`
	Consumer              common.Address      `json:"consumer"`
	Provider              common.Address      `json:"provider"`
	Nonce                 uint64              `json:"nonce"`
	Balance               types.Amount        `json:"balance"`
	AdditionalInfo        string              `json:"additional_info,omitempty"`
	TEESignerAcknowledged bool                `json:"tee_signer_acknowledged"`
	Refunds               refund.Ledger       `json:"refunds"`
	Deliverables          deliverable.Journal `json:"deliverables"`
}

// Key returns the account's composite key.
func (a *Account) Key() Key {
	return Key{Consumer: a.Consumer, Provider: a.Provider}
}

// PendingRefund returns the total locked by active refunds.
func (a *Account) PendingRefund() types.Amount {
	return a.Refunds.Pending
}

// Available returns the balance not locked by pending refunds.
func (a *Account) Available() types.Amount {
	return a.Balance.SaturatingSub(a.Refunds.Pending)
}

// IsZero reports whether a is a placeholder for a missing pair.
func (a *Account) IsZero() bool {
	return a.ID.IsNil() && a.Consumer == (common.Address{}) && a.Provider == (common.Address{})
}

// ListOpts paginates account listings. A zero Limit means no limit.
type ListOpts struct {
	Offset int
	Limit  int
}

// Page applies opts to a slice of length total and returns the bounds.
// An offset at or past the end yields an empty range.
func (o ListOpts) Page(total int) (start, end int) {
	start = o.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end = total
	if o.Limit > 0 && o.Limit < total-start {
		end = start + o.Limit
	}
	return start, end
}
