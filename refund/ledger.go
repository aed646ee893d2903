package refund

import (
	"fmt"
	"time"

	"github.com/xraph/escrow/types"
)

// Active returns a copy of the live refunds in stored order.
func (l *Ledger) Active() []Refund {
	out := make([]Refund, l.ActiveCount)
	copy(out, l.Refunds[:l.ActiveCount])
	return out
}

// Request records a new refund of amount against balance.
//
// The vacated slot at the active boundary is reused when one exists,
// otherwise the slice grows by one.
func (l *Ledger) Request(amount, balance types.Amount, now time.Time) (Refund, error) {
	if amount > balance.SaturatingSub(l.Pending) {
		return Refund{}, ErrInsufficientBalance
	}
	if l.ActiveCount >= MaxRefunds {
		return Refund{}, ErrTooManyRefunds
	}

	r := Refund{
		Index:     l.ActiveCount,
		Amount:    amount,
		CreatedAt: now.UTC(),
	}
	if l.ActiveCount < len(l.Refunds) {
		l.Refunds[l.ActiveCount] = r
	} else {
		l.Refunds = append(l.Refunds, r)
	}
	l.ActiveCount++
	l.Pending += amount

	return r, nil
}

// Cancel reduces pending refunds by up to amount, newest first.
// It returns how much was actually cancelled.
func (l *Ledger) Cancel(amount types.Amount) types.Amount {
	remaining := amount
	for i := l.ActiveCount - 1; i >= 0 && remaining > 0; i-- {
		r := &l.Refunds[i]
		take := r.Amount.Min(remaining)
		r.Amount -= take
		l.Pending -= take
		remaining -= take
		if r.Amount.IsZero() {
			l.ActiveCount--
		}
	}
	return amount - remaining
}

// Process pays out every active refund whose lock has expired and compacts
// the survivors toward index 0, keeping their relative order.
// It returns the released total; the caller debits it from the balance.
func (l *Ledger) Process(now time.Time, lock time.Duration) types.Amount {
	var released types.Amount
	kept := 0
	for i := 0; i < l.ActiveCount; i++ {
		r := l.Refunds[i]
		if !now.Before(r.UnlocksAt(lock)) {
			released += r.Amount
			continue
		}
		r.Index = kept
		l.Refunds[kept] = r
		kept++
	}
	for i := kept; i < l.ActiveCount; i++ {
		l.Refunds[i] = Refund{Index: i}
	}
	l.ActiveCount = kept
	l.Pending -= released
	return released
}

// Reset drops every refund. Used by soft-delete.
func (l *Ledger) Reset() {
	l.Refunds = nil
	l.ActiveCount = 0
	l.Pending = 0
}

// Clone returns a deep copy.
func (l Ledger) Clone() Ledger {
	out := l
	if l.Refunds != nil {
		out.Refunds = make([]Refund, len(l.Refunds))
		copy(out.Refunds, l.Refunds)
	}
	return out
}

// Validate checks the sub-ledger invariants: the boundary is within the
// slice, at most MaxRefunds are active, and Pending equals the active sum.
func (l *Ledger) Validate() error {
	if l.ActiveCount < 0 || l.ActiveCount > len(l.Refunds) {
		return fmt.Errorf("refund: active count %d outside [0, %d]", l.ActiveCount, len(l.Refunds))
	}
	if l.ActiveCount > MaxRefunds {
		return fmt.Errorf("refund: %d active refunds exceeds %d", l.ActiveCount, MaxRefunds)
	}
	amounts := make([]types.Amount, l.ActiveCount)
	for i, r := range l.Refunds[:l.ActiveCount] {
		amounts[i] = r.Amount
	}
	sum, err := types.Sum(amounts...)
	if err != nil {
		return fmt.Errorf("refund: active sum: %w", err)
	}
	if sum != l.Pending {
		return fmt.Errorf("refund: pending %s does not match active sum %s", l.Pending, sum)
	}
	return nil
}
