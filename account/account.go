package account

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/refund"
	"github.com/xraph/escrow/types"
)

// ValidateInfo checks the AdditionalInfo bound.
func ValidateInfo(info string) error {
	if len(info) > MaxInfoLength {
		return ErrInfoTooLong
	}
	return nil
}

// New builds a fresh account for key with an opening balance. The nonce is
// carried over from a previous incarnation of the pair, if any.
func New(key Key, balance types.Amount, info string, nonce uint64, now time.Time) (*Account, error) {
	if err := ValidateInfo(info); err != nil {
		return nil, err
	}
	if balance.Validate() != nil {
		return nil, ErrInvalidAmount
	}
	return &Account{
		Entity:         types.NewEntityAt(now),
		ID:             id.NewAccountID(),
		Consumer:       key.Consumer,
		Provider:       key.Provider,
		Nonce:          nonce,
		Balance:        balance,
		AdditionalInfo: info,
	}, nil
}

// Deposit credits amount and then cancels up to cancel of pending refunds,
// newest first. It returns the amount actually cancelled.
func (a *Account) Deposit(amount, cancel types.Amount) (types.Amount, error) {
	if amount.Validate() != nil || cancel.Validate() != nil {
		return 0, ErrInvalidAmount
	}
	balance, err := a.Balance.Add(amount)
	if err != nil {
		return 0, err
	}
	a.Balance = balance
	if cancel.IsZero() {
		return 0, nil
	}
	return a.Refunds.Cancel(cancel), nil
}

// RequestRefund locks amount of the available balance for withdrawal.
func (a *Account) RequestRefund(amount types.Amount, now time.Time) (refund.Refund, error) {
	if !amount.IsPositive() {
		return refund.Refund{}, ErrInvalidAmount
	}
	return a.Refunds.Request(amount, a.Balance, now)
}

// RequestRefundAll locks the whole available balance. It reports false and
// leaves the account untouched when nothing is available.
func (a *Account) RequestRefundAll(now time.Time) (refund.Refund, bool, error) {
	available := a.Available()
	if available.IsZero() {
		return refund.Refund{}, false, nil
	}
	r, err := a.Refunds.Request(available, a.Balance, now)
	if err != nil {
		return refund.Refund{}, false, err
	}
	return r, true, nil
}

// ProcessRefunds pays out every refund whose lock has expired and debits
// the balance. It returns the amount released.
func (a *Account) ProcessRefunds(now time.Time, lock time.Duration) types.Amount {
	released := a.Refunds.Process(now, lock)
	a.Balance -= released
	return released
}

// AcknowledgeTEESigner sets the TEE signer flag. Revoking requires a zero
// balance.
func (a *Account) AcknowledgeTEESigner(acknowledged bool) error {
	if !acknowledged && !a.Balance.IsZero() {
		return ErrNonZeroBalance
	}
	a.TEESignerAcknowledged = acknowledged
	return nil
}

// AdvanceNonce moves the nonce forward to n. Reusing or going back to an
// already consumed nonce fails with ErrStaleNonce.
func (a *Account) AdvanceNonce(n uint64) error {
	if n <= a.Nonce {
		return ErrStaleNonce
	}
	a.Nonce = n
	return nil
}

// Settle charges fee for an acknowledged deliverable and records its
// payload. When the fee leaves the balance below the pending refunds, the
// shortfall is cancelled from the newest refunds. It returns that amount.
func (a *Account) Settle(deliverableID string, contentHash common.Hash, payload []byte, fee types.Amount, nonce uint64) (types.Amount, error) {
	if fee.Validate() != nil {
		return 0, ErrInvalidAmount
	}
	if nonce <= a.Nonce {
		return 0, ErrStaleNonce
	}
	d, err := a.Deliverables.Get(deliverableID)
	if err != nil {
		return 0, err
	}
	if d.ContentHash != contentHash {
		return 0, ErrContentHashMismatch
	}
	if fee > a.Balance {
		return 0, refund.ErrInsufficientBalance
	}
	if err := a.Deliverables.Settle(deliverableID, payload); err != nil {
		return 0, err
	}

	a.Balance -= fee
	a.Nonce = nonce

	var cancelled types.Amount
	if a.Refunds.Pending > a.Balance {
		cancelled = a.Refunds.Cancel(a.Refunds.Pending - a.Balance)
	}
	return cancelled, nil
}

// SoftDelete clears everything but the identity keys and the nonce.
func (a *Account) SoftDelete() {
	a.Balance = 0
	a.AdditionalInfo = ""
	a.TEESignerAcknowledged = false
	a.Refunds.Reset()
	a.Deliverables.Reset()
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	out := *a
	out.Refunds = a.Refunds.Clone()
	out.Deliverables = a.Deliverables.Clone()
	return &out
}

// CheckInvariants verifies the balance, refund, and journal invariants.
func (a *Account) CheckInvariants() error {
	if a.Balance < 0 {
		return fmt.Errorf("account %s: negative balance %s", a.Key(), a.Balance)
	}
	if err := ValidateInfo(a.AdditionalInfo); err != nil {
		return fmt.Errorf("account %s: %w", a.Key(), err)
	}
	if err := a.Refunds.Validate(); err != nil {
		return fmt.Errorf("account %s: %w", a.Key(), err)
	}
	if a.Balance < a.Refunds.Pending {
		return fmt.Errorf("account %s: balance %s below pending refunds %s", a.Key(), a.Balance, a.Refunds.Pending)
	}
	if err := a.Deliverables.Validate(); err != nil {
		return fmt.Errorf("account %s: %w", a.Key(), err)
	}
	return nil
}

// Placeholder returns the zero-valued entry used for missing pairs in batch
// lookups.
func Placeholder() *Account {
	return &Account{}
}
