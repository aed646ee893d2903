package sqlite_test

import (
	"context"
	"errors"
	"math"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/store/sqlite"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func addr(n int) common.Address {
	return common.BigToAddress(big.NewInt(int64(n)))
}

// newStore opens a migrated store on a fresh database file.
func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	drv := sqlitedriver.New()
	if err := drv.Open(ctx, filepath.Join(t.TempDir(), "escrow.db")); err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		t.Fatalf("open grove: %v", err)
	}
	s := sqlite.New(db)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreate(t *testing.T, s *sqlite.Store, consumer, provider common.Address, nonce uint64) *account.Account {
	t.Helper()
	a, err := account.New(account.NewKey(consumer, provider), 10, "", nonce, t0)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("create %s: %v", a.Key(), err)
	}
	return a
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	created := mustCreate(t, s, addr(1), addr(100), 0)

	a, err := s.GetAccount(ctx, account.NewKey(addr(1), addr(100)))
	if err != nil {
		t.Fatal(err)
	}
	if a.ID.String() != created.ID.String() || a.Balance != 10 || a.Consumer != addr(1) || a.Provider != addr(100) {
		t.Errorf("round trip mismatch: %+v", a)
	}
	if !a.CreatedAt.Equal(t0) {
		t.Errorf("created_at: got %v, want %v", a.CreatedAt, t0)
	}

	dup, _ := account.New(account.NewKey(addr(1), addr(100)), 0, "", 0, t0)
	if err := s.CreateAccount(ctx, dup); !errors.Is(err, escrow.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	if _, err := s.GetAccount(ctx, account.NewKey(addr(2), addr(100))); !errors.Is(err, escrow.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePersistsSubLedgers(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := mustCreate(t, s, addr(1), addr(100), 0)

	if _, err := a.RequestRefund(4, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Deliverables.Add("job-1", common.HexToHash("0x01"), t0); err != nil {
		t.Fatal(err)
	}
	if err := a.Deliverables.Acknowledge("job-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateAccount(ctx, a); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetAccount(ctx, a.Key())
	if err != nil {
		t.Fatal(err)
	}
	if got.Refunds.Pending != 4 || got.Refunds.ActiveCount != 1 {
		t.Errorf("refunds: got %+v", got.Refunds)
	}
	d, err := got.Deliverables.Get("job-1")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Acknowledged || d.ContentHash != common.HexToHash("0x01") {
		t.Errorf("deliverable: got %+v", d)
	}
	if err := got.CheckInvariants(); err != nil {
		t.Errorf("invariants after reload: %v", err)
	}

	missing, _ := account.New(account.NewKey(addr(9), addr(9)), 0, "", 0, t0)
	if err := s.UpdateAccount(ctx, missing); !errors.Is(err, escrow.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveAndRecreateKeepsNonce(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	key := account.NewKey(addr(1), addr(100))
	a := mustCreate(t, s, addr(1), addr(100), 7)
	if _, err := a.RequestRefund(3, t0); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateAccount(ctx, a); err != nil {
		t.Fatal(err)
	}

	removed, err := s.RemoveAccount(ctx, key, 7)
	if err != nil || !removed {
		t.Fatalf("remove: removed=%v err=%v", removed, err)
	}
	if _, err := s.GetAccount(ctx, key); !errors.Is(err, escrow.ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
	if nonce, err := s.AccountNonce(ctx, key); err != nil || nonce != 7 {
		t.Errorf("tombstone nonce: got %d (%v), want 7", nonce, err)
	}

	removed, err = s.RemoveAccount(ctx, key, 0)
	if err != nil || removed {
		t.Errorf("second remove: removed=%v err=%v", removed, err)
	}

	revived := mustCreate(t, s, addr(1), addr(100), 7)
	got, err := s.GetAccount(ctx, key)
	if err != nil {
		t.Fatalf("get revived: %v", err)
	}
	if got.ID.String() != revived.ID.String() || got.Nonce != 7 || got.Refunds.Pending != 0 || got.Deliverables.Len() != 0 {
		t.Errorf("revived account carries old state: %+v", got)
	}

	if nonce, _ := s.AccountNonce(ctx, account.NewKey(addr(9), addr(9))); nonce != 0 {
		t.Errorf("unknown pair nonce: %d", nonce)
	}
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for i := 1; i <= 5; i++ {
		mustCreate(t, s, addr(i), addr(100), 0)
	}
	mustCreate(t, s, addr(1), addr(200), 0)
	if _, err := s.RemoveAccount(ctx, account.NewKey(addr(5), addr(100)), 0); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		list      func() ([]*account.Account, int, error)
		wantLen   int
		wantTotal int
	}{
		{"All", func() ([]*account.Account, int, error) {
			return s.ListAccounts(ctx, account.ListOpts{})
		}, 5, 5},
		{"AllLimited", func() ([]*account.Account, int, error) {
			return s.ListAccounts(ctx, account.ListOpts{Offset: 1, Limit: 2})
		}, 2, 5},
		{"OffsetOnly", func() ([]*account.Account, int, error) {
			return s.ListAccounts(ctx, account.ListOpts{Offset: 3})
		}, 2, 5},
		{"HugeLimit", func() ([]*account.Account, int, error) {
			return s.ListAccounts(ctx, account.ListOpts{Offset: 1, Limit: math.MaxInt})
		}, 4, 5},
		{"OffsetPastEnd", func() ([]*account.Account, int, error) {
			return s.ListAccounts(ctx, account.ListOpts{Offset: 10})
		}, 0, 5},
		{"ByProvider", func() ([]*account.Account, int, error) {
			return s.ListAccountsByProvider(ctx, addr(100), account.ListOpts{Offset: 2})
		}, 2, 4},
		{"ByConsumer", func() ([]*account.Account, int, error) {
			return s.ListAccountsByConsumer(ctx, addr(1), account.ListOpts{})
		}, 2, 2},
		{"UnknownProvider", func() ([]*account.Account, int, error) {
			return s.ListAccountsByProvider(ctx, addr(300), account.ListOpts{})
		}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := tt.list()
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.wantLen || total != tt.wantTotal {
				t.Errorf("got len=%d total=%d, want len=%d total=%d", len(got), total, tt.wantLen, tt.wantTotal)
			}
		})
	}
}

func TestGetAccountsMissing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	mustCreate(t, s, addr(1), addr(100), 0)
	mustCreate(t, s, addr(3), addr(100), 0)
	if _, err := s.RemoveAccount(ctx, account.NewKey(addr(3), addr(100)), 0); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetAccounts(ctx, []account.Key{
		account.NewKey(addr(1), addr(100)),
		account.NewKey(addr(2), addr(100)),
		account.NewKey(addr(3), addr(100)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] == nil || got[1] != nil || got[2] != nil {
		t.Errorf("unexpected batch result %v", got)
	}
	if got[0] != nil && got[0].Consumer != addr(1) {
		t.Errorf("batch returned wrong account %s", got[0].Key())
	}
}

func TestEngineLifecycle(t *testing.T) {
	ctx := context.Background()
	e := escrow.New(newStore(t), escrow.WithRefundLockDuration(0))
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}

	consumer, provider := addr(1), addr(100)
	if _, err := e.AddAccount(ctx, consumer, provider, 50, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.RequestRefund(ctx, consumer, provider, 20); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddDeliverable(ctx, consumer, provider, "job-1", common.HexToHash("0xaa")); err != nil {
		t.Fatal(err)
	}
	if err := e.AcknowledgeDeliverable(ctx, consumer, provider, "job-1"); err != nil {
		t.Fatal(err)
	}

	released, err := e.DeleteAccount(ctx, consumer, provider)
	if err != nil {
		t.Fatal(err)
	}
	if released != 50 {
		t.Errorf("released: got %s, want 50", released)
	}

	a, err := e.AddAccount(ctx, consumer, provider, 5, "second")
	if err != nil {
		t.Fatalf("re-create: %v", err)
	}
	if a.Balance != 5 || a.Refunds.Pending != 0 || a.Deliverables.Len() != 0 {
		t.Errorf("re-created account carries old state: %+v", a)
	}
	if _, err := e.GetDeliverable(ctx, consumer, provider, "job-1"); !errors.Is(err, escrow.ErrDeliverableNotFound) {
		t.Errorf("expected ErrDeliverableNotFound, got %v", err)
	}
}
