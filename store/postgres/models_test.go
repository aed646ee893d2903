package postgres

import (
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/escrow/account"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestAccountModelKeepsState(t *testing.T) {
	key := account.NewKey(common.HexToAddress("0xc1"), common.HexToAddress("0xb1"))
	a, err := account.New(key, 100, "info", math.MaxUint64, t0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.RequestRefund(40, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Deliverables.Add("job.1", common.HexToHash("0x01"), t0); err != nil {
		t.Fatal(err)
	}

	m, err := toAccountModel(a)
	if err != nil {
		t.Fatal(err)
	}
	got, err := fromAccountModel(m)
	if err != nil {
		t.Fatal(err)
	}

	if got.Key() != key || got.ID.String() != a.ID.String() {
		t.Errorf("identity: got %s/%s", got.Key(), got.ID)
	}
	if got.Nonce != math.MaxUint64 {
		t.Errorf("nonce: got %d", got.Nonce)
	}
	if got.Balance != 100 || got.Refunds.Pending != 40 || got.Refunds.ActiveCount != 1 {
		t.Errorf("amounts: balance %s pending %s", got.Balance, got.Refunds.Pending)
	}
	if _, err := got.Deliverables.Get("job.1"); err != nil {
		t.Errorf("deliverable lost: %v", err)
	}
	if err := got.CheckInvariants(); err != nil {
		t.Error(err)
	}
}

func TestAccountModelClearedColumns(t *testing.T) {
	a, err := account.New(account.NewKey(common.HexToAddress("0xc1"), common.HexToAddress("0xb1")), 0, "", 3, t0)
	if err != nil {
		t.Fatal(err)
	}
	m, err := toAccountModel(a)
	if err != nil {
		t.Fatal(err)
	}
	// RemoveAccount resets both JSON columns to an empty object.
	m.Refunds = []byte("{}")
	m.Deliverables = []byte("{}")

	got, err := fromAccountModel(m)
	if err != nil {
		t.Fatal(err)
	}
	if got.Refunds.ActiveCount != 0 || got.Deliverables.Len() != 0 {
		t.Errorf("cleared row decoded with state: %+v", got)
	}
}
