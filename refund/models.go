// Package refund implements the per-account ledger of time-locked withdrawals.
//
// Refunds live in a grow-only slice. Only the prefix [0, ActiveCount) is
// live; slots past the boundary are vacated storage that the next request
// reuses before the slice is ever extended.
package refund

import (
	"errors"
	"time"

	"github.com/xraph/escrow/types"
)

// MaxRefunds bounds the number of active refunds per account.
const MaxRefunds = 5

// Refund errors.
var (
	ErrInsufficientBalance = errors.New("escrow: insufficient balance")
	ErrTooManyRefunds      = errors.New("escrow: too many pending refunds")
)

// Refund is a pending, time-locked withdrawal.
type Refund struct {
	Index     int          `json:"index"`
	Amount    types.Amount `json:"amount"`
	CreatedAt time.Time    `json:"created_at"`
}

// UnlocksAt returns the earliest time the refund can be paid out.
func (r Refund) UnlocksAt(lock time.Duration) time.Time {
	return r.CreatedAt.Add(lock)
}

// Ledger is the refund sub-ledger embedded in an account.
type Ledger struct {
	Refunds     []Refund     `json:"refunds"`
	ActiveCount int          `json:"active_count"`
	Pending     types.Amount `json:"pending"`
}
