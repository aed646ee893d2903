package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Amount is a quantity of escrowed funds in the smallest unit.
// All arithmetic is integer-only and never negative.
type Amount int64

// Errors returned by checked arithmetic.
var (
	ErrNegativeAmount = errors.New("escrow: amount must not be negative")
	ErrAmountOverflow = errors.New("escrow: amount overflow")
)

// MaxAmount is the largest representable amount.
const MaxAmount Amount = math.MaxInt64

// Validate returns ErrNegativeAmount for negative values.
func (a Amount) Validate() error {
	if a < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// Add returns a+other, failing with ErrAmountOverflow instead of wrapping.
func (a Amount) Add(other Amount) (Amount, error) {
	if other > MaxAmount-a {
		return 0, ErrAmountOverflow
	}
	return a + other, nil
}

// SaturatingSub returns a-other, or zero when other exceeds a.
func (a Amount) SaturatingSub(other Amount) Amount {
	if other >= a {
		return 0
	}
	return a - other
}

// Min returns the smaller of two amounts.
func (a Amount) Min(other Amount) Amount {
	if a < other {
		return a
	}
	return other
}

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a > 0 }

// Uint64 returns the amount as an unsigned integer. Amounts are never negative
// once validated, so the conversion is lossless.
func (a Amount) Uint64() uint64 {
	if a < 0 {
		return 0
	}
	return uint64(a)
}

// String returns the decimal representation.
func (a Amount) String() string {
	return strconv.FormatInt(int64(a), 10)
}

// ParseAmount parses a non-negative decimal amount.
func ParseAmount(s string) (Amount, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("escrow: parse amount %q: %w", s, err)
	}
	a := Amount(v)
	if err := a.Validate(); err != nil {
		return 0, err
	}
	return a, nil
}

// Sum adds amounts, failing on overflow.
func Sum(amounts ...Amount) (Amount, error) {
	var total Amount
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return 0, err
		}
	}
	return total, nil
}
