package account_test

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/deliverable"
	"github.com/xraph/escrow/refund"
	"github.com/xraph/escrow/types"
)

var (
	t0       = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	consumer = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	provider = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func newAccount(t *testing.T, balance types.Amount) *account.Account {
	t.Helper()
	a, err := account.New(account.NewKey(consumer, provider), balance, "", 0, t0)
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	return a
}

func checkInvariants(t *testing.T, a *account.Account) {
	t.Helper()
	if err := a.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestNew(t *testing.T) {
	key := account.NewKey(consumer, provider)

	a, err := account.New(key, 100, "meta", 7, t0)
	if err != nil {
		t.Fatal(err)
	}
	if a.Nonce != 7 || a.Balance != 100 || a.Key() != key {
		t.Errorf("unexpected account %+v", a)
	}
	if a.ID.IsNil() {
		t.Error("expected generated ID")
	}

	if _, err := account.New(key, 0, strings.Repeat("i", account.MaxInfoLength+1), 0, t0); !errors.Is(err, account.ErrInfoTooLong) {
		t.Errorf("expected ErrInfoTooLong, got %v", err)
	}
	if _, err := account.New(key, -1, "", 0, t0); !errors.Is(err, account.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestDepositCancelsLIFO(t *testing.T) {
	a := newAccount(t, 100)
	if _, err := a.RequestRefund(10, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := a.RequestRefund(20, t0.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	cancelled, err := a.Deposit(0, 15)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled != 15 {
		t.Errorf("cancelled: got %s, want 15", cancelled)
	}

	active := a.Refunds.Active()
	if len(active) != 2 || active[0].Amount != 10 || active[1].Amount != 5 {
		t.Errorf("unexpected refunds %+v", active)
	}
	if a.PendingRefund() != 15 {
		t.Errorf("pending: got %s, want 15", a.PendingRefund())
	}
	checkInvariants(t, a)
}

func TestDepositOverflow(t *testing.T) {
	a := newAccount(t, types.MaxAmount)
	if _, err := a.Deposit(1, 0); !errors.Is(err, types.ErrAmountOverflow) {
		t.Errorf("expected ErrAmountOverflow, got %v", err)
	}
	if a.Balance != types.MaxAmount {
		t.Error("balance changed on failed deposit")
	}
}

func TestRequestRefund(t *testing.T) {
	tests := []struct {
		name    string
		balance types.Amount
		amounts []types.Amount
		wantErr error
	}{
		{"Within", 100, []types.Amount{40, 60}, nil},
		{"Exceeds", 100, []types.Amount{40, 61}, refund.ErrInsufficientBalance},
		{"Zero", 100, []types.Amount{0}, account.ErrInvalidAmount},
		{"Negative", 100, []types.Amount{-5}, account.ErrInvalidAmount},
		{"TooMany", 100, []types.Amount{1, 1, 1, 1, 1, 1}, refund.ErrTooManyRefunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAccount(t, tt.balance)
			var err error
			for _, amt := range tt.amounts {
				if _, err = a.RequestRefund(amt, t0); err != nil {
					break
				}
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
			checkInvariants(t, a)
		})
	}
}

func TestRequestRefundAll(t *testing.T) {
	a := newAccount(t, 100)
	if _, err := a.RequestRefund(30, t0); err != nil {
		t.Fatal(err)
	}

	r, ok, err := a.RequestRefundAll(t0)
	if err != nil || !ok {
		t.Fatalf("request all: ok=%v err=%v", ok, err)
	}
	if r.Amount != 70 {
		t.Errorf("amount: got %s, want 70", r.Amount)
	}

	_, ok, err = a.RequestRefundAll(t0)
	if err != nil || ok {
		t.Errorf("expected no-op, got ok=%v err=%v", ok, err)
	}
	if a.Refunds.ActiveCount != 2 {
		t.Errorf("active: got %d, want 2", a.Refunds.ActiveCount)
	}
}

func TestRefundThenProcessZeroLock(t *testing.T) {
	a := newAccount(t, 100)
	if _, err := a.RequestRefund(25, t0); err != nil {
		t.Fatal(err)
	}
	before := a.PendingRefund() - 25

	released := a.ProcessRefunds(t0, 0)
	if released != 25 {
		t.Errorf("released: got %s, want 25", released)
	}
	if a.PendingRefund() != before {
		t.Errorf("pending: got %s, want %s", a.PendingRefund(), before)
	}
	if a.Balance != 75 {
		t.Errorf("balance: got %s, want 75", a.Balance)
	}
	checkInvariants(t, a)
}

func TestProcessRespectsLock(t *testing.T) {
	a := newAccount(t, 100)
	if _, err := a.RequestRefund(10, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := a.RequestRefund(20, t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	released := a.ProcessRefunds(t0.Add(2*time.Hour-time.Second), 2*time.Hour)
	if released != 0 {
		t.Errorf("released before unlock: %s", released)
	}

	released = a.ProcessRefunds(t0.Add(2*time.Hour), 2*time.Hour)
	if released != 10 {
		t.Errorf("released: got %s, want 10", released)
	}
	if a.Balance != 90 || a.PendingRefund() != 20 {
		t.Errorf("balance=%s pending=%s", a.Balance, a.PendingRefund())
	}
	checkInvariants(t, a)
}

func TestAcknowledgeTEESigner(t *testing.T) {
	a := newAccount(t, 10)
	if err := a.AcknowledgeTEESigner(true); err != nil {
		t.Fatal(err)
	}
	if err := a.AcknowledgeTEESigner(false); !errors.Is(err, account.ErrNonZeroBalance) {
		t.Fatalf("expected ErrNonZeroBalance, got %v", err)
	}
	if !a.TEESignerAcknowledged {
		t.Fatal("flag reverted on failure")
	}

	a.Balance = 0
	if err := a.AcknowledgeTEESigner(false); err != nil {
		t.Fatalf("revoke at zero balance: %v", err)
	}
}

func TestAdvanceNonce(t *testing.T) {
	a := newAccount(t, 0)
	if err := a.AdvanceNonce(3); err != nil {
		t.Fatal(err)
	}
	for _, n := range []uint64{0, 3} {
		if err := a.AdvanceNonce(n); !errors.Is(err, account.ErrStaleNonce) {
			t.Errorf("nonce %d: expected ErrStaleNonce, got %v", n, err)
		}
	}
}

func TestSettle(t *testing.T) {
	h := common.BytesToHash([]byte("content"))

	setup := func(t *testing.T) *account.Account {
		a := newAccount(t, 100)
		if _, err := a.Deliverables.Add("d1", h, t0); err != nil {
			t.Fatal(err)
		}
		if err := a.Deliverables.Acknowledge("d1"); err != nil {
			t.Fatal(err)
		}
		return a
	}

	t.Run("Success", func(t *testing.T) {
		a := setup(t)
		cancelled, err := a.Settle("d1", h, []byte("sealed"), 40, 1)
		if err != nil {
			t.Fatal(err)
		}
		if cancelled != 0 || a.Balance != 60 || a.Nonce != 1 {
			t.Errorf("cancelled=%s balance=%s nonce=%d", cancelled, a.Balance, a.Nonce)
		}
		checkInvariants(t, a)
	})

	t.Run("TrimsRefunds", func(t *testing.T) {
		a := setup(t)
		if _, err := a.RequestRefund(30, t0); err != nil {
			t.Fatal(err)
		}
		if _, err := a.RequestRefund(50, t0); err != nil {
			t.Fatal(err)
		}
		cancelled, err := a.Settle("d1", h, nil, 40, 1)
		if err != nil {
			t.Fatal(err)
		}
		// Balance 60 against 80 pending: 20 comes off the newest refund.
		if cancelled != 20 || a.PendingRefund() != 60 {
			t.Errorf("cancelled=%s pending=%s", cancelled, a.PendingRefund())
		}
		checkInvariants(t, a)
	})

	tests := []struct {
		name    string
		id      string
		hash    common.Hash
		fee     types.Amount
		nonce   uint64
		wantErr error
	}{
		{"StaleNonce", "d1", h, 10, 0, account.ErrStaleNonce},
		{"Missing", "nope", h, 10, 1, deliverable.ErrNotFound},
		{"HashMismatch", "d1", common.Hash{}, 10, 1, account.ErrContentHashMismatch},
		{"FeeTooHigh", "d1", h, 101, 1, refund.ErrInsufficientBalance},
		{"NegativeFee", "d1", h, -1, 1, account.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := setup(t)
			if _, err := a.Settle(tt.id, tt.hash, nil, tt.fee, tt.nonce); !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("Twice", func(t *testing.T) {
		a := setup(t)
		if _, err := a.Settle("d1", h, nil, 1, 1); err != nil {
			t.Fatal(err)
		}
		if _, err := a.Settle("d1", h, nil, 1, 2); !errors.Is(err, deliverable.ErrAlreadySettled) {
			t.Errorf("expected ErrAlreadySettled, got %v", err)
		}
	})

	t.Run("Unacknowledged", func(t *testing.T) {
		a := newAccount(t, 100)
		if _, err := a.Deliverables.Add("d1", h, t0); err != nil {
			t.Fatal(err)
		}
		if _, err := a.Settle("d1", h, nil, 1, 1); !errors.Is(err, deliverable.ErrNotAcknowledged) {
			t.Errorf("expected ErrNotAcknowledged, got %v", err)
		}
	})
}

func TestSoftDeleteKeepsNonce(t *testing.T) {
	a := newAccount(t, 100)
	a.Nonce = 7
	if _, err := a.RequestRefund(10, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Deliverables.Add("d1", common.Hash{}, t0); err != nil {
		t.Fatal(err)
	}

	a.SoftDelete()

	if a.Nonce != 7 {
		t.Errorf("nonce: got %d, want 7", a.Nonce)
	}
	if a.Balance != 0 || a.Refunds.ActiveCount != 0 || a.Deliverables.Len() != 0 || len(a.Deliverables.Records) != 0 {
		t.Errorf("state not cleared: %+v", a)
	}
	checkInvariants(t, a)
}

func TestCloneIsDeep(t *testing.T) {
	a := newAccount(t, 100)
	if _, err := a.RequestRefund(10, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Deliverables.Add("d1", common.Hash{}, t0); err != nil {
		t.Fatal(err)
	}

	c := a.Clone()
	c.Refunds.Refunds[0].Amount = 99
	if err := c.Deliverables.Acknowledge("d1"); err != nil {
		t.Fatal(err)
	}

	if a.Refunds.Refunds[0].Amount != 10 {
		t.Error("refunds shared between clone and original")
	}
	if d, _ := a.Deliverables.Get("d1"); d.Acknowledged {
		t.Error("journal shared between clone and original")
	}
}

func TestListOptsPage(t *testing.T) {
	tests := []struct {
		opts       account.ListOpts
		total      int
		start, end int
	}{
		{account.ListOpts{}, 5, 0, 5},
		{account.ListOpts{Offset: 2}, 5, 2, 5},
		{account.ListOpts{Offset: 1, Limit: 2}, 5, 1, 3},
		{account.ListOpts{Offset: 4, Limit: 10}, 5, 4, 5},
		{account.ListOpts{Offset: 5}, 5, 5, 5},
		{account.ListOpts{Offset: 9, Limit: 1}, 5, 5, 5},
		{account.ListOpts{Offset: 1, Limit: math.MaxInt}, 3, 1, 3},
		{account.ListOpts{Offset: math.MaxInt, Limit: math.MaxInt}, 3, 3, 3},
	}
	for _, tt := range tests {
		start, end := tt.opts.Page(tt.total)
		if start != tt.start || end != tt.end {
			t.Errorf("%+v over %d: got [%d,%d), want [%d,%d)", tt.opts, tt.total, start, end, tt.start, tt.end)
		}
	}
}
