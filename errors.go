package escrow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/deliverable"
	"github.com/xraph/escrow/refund"
	"github.com/xraph/escrow/signature"
	"github.com/xraph/escrow/types"
)

// Sentinel errors for common failure scenarios. Most are owned by the
// package that raises them and re-exported here so callers need only one
// import for errors.Is checks.
var (
	// Account errors
	ErrNotFound                 = account.ErrNotFound
	ErrAlreadyExists            = account.ErrAlreadyExists
	ErrInfoTooLong              = account.ErrInfoTooLong
	ErrNonZeroBalance           = account.ErrNonZeroBalance
	ErrBatchTooLarge            = account.ErrBatchTooLarge
	ErrInvalidAmount            = account.ErrInvalidAmount
	ErrStaleNonce               = account.ErrStaleNonce
	ErrTEESignerNotAcknowledged = account.ErrTEESignerNotAcknowledged
	ErrContentHashMismatch      = account.ErrContentHashMismatch

	// Balance errors
	ErrInsufficientBalance = refund.ErrInsufficientBalance
	ErrTooManyRefunds      = refund.ErrTooManyRefunds
	ErrNegativeAmount      = types.ErrNegativeAmount
	ErrAmountOverflow      = types.ErrAmountOverflow

	// Deliverable errors
	ErrDeliverableNotFound        = deliverable.ErrNotFound
	ErrDeliverableAlreadyExists   = deliverable.ErrAlreadyExists
	ErrInvalidIDLength            = deliverable.ErrInvalidIDLength
	ErrPreviousNotAcknowledged    = deliverable.ErrPreviousNotAcknowledged
	ErrAlreadySettled             = deliverable.ErrAlreadySettled
	ErrDeliverableNotAcknowledged = deliverable.ErrNotAcknowledged

	// Signature errors
	ErrInvalidSignature = signature.ErrInvalidSignature
	ErrIDTooLong        = signature.ErrIDTooLong

	// General errors
	ErrInvalidInput = errors.New("escrow: invalid input")

	// Store errors
	ErrStoreClosed     = errors.New("escrow: store is closed")
	ErrMigrationFailed = errors.New("escrow: migration failed")
)

// OpError records a failed engine operation together with the keys needed
// to diagnose it without re-querying.
type OpError struct {
	Op            string
	Consumer      common.Address
	Provider      common.Address
	DeliverableID string
	Index         int // refund index, -1 when not applicable
	Err           error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString("escrow: ")
	b.WriteString(e.Op)
	if e.Consumer != (common.Address{}) {
		fmt.Fprintf(&b, " consumer=%s", e.Consumer.Hex())
	}
	if e.Provider != (common.Address{}) {
		fmt.Fprintf(&b, " provider=%s", e.Provider.Hex())
	}
	if e.DeliverableID != "" {
		fmt.Fprintf(&b, " deliverable=%q", e.DeliverableID)
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, " index=%d", e.Index)
	}
	b.WriteString(": ")
	b.WriteString(strings.TrimPrefix(e.Err.Error(), "escrow: "))
	return b.String()
}

func (e *OpError) Unwrap() error { return e.Err }

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("escrow: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDeliverableNotFound)
}

// IsBalanceError returns true if the error is caused by the balance or the
// refund bounds.
func IsBalanceError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrTooManyRefunds) ||
		errors.Is(err, ErrNonZeroBalance) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrNegativeAmount) ||
		errors.Is(err, ErrAmountOverflow)
}

// IsSignatureError returns true if a signed claim was rejected.
func IsSignatureError(err error) bool {
	return errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrIDTooLong) ||
		errors.Is(err, ErrStaleNonce)
}
