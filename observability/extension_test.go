package observability_test

import (
	"context"
	"sync"
	"testing"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/deliverable"
	"github.com/xraph/escrow/observability"
	"github.com/xraph/escrow/refund"
)

type fakeMetric struct {
	mu       sync.Mutex
	total    float64
	observed []float64
}

func (m *fakeMetric) Inc() { m.Add(1) }

func (m *fakeMetric) Add(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total += v
}

func (m *fakeMetric) Observe(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed = append(m.observed, v)
}

type fakeFactory struct {
	metrics map[string]*fakeMetric
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{metrics: make(map[string]*fakeMetric)}
}

func (f *fakeFactory) get(name string) *fakeMetric {
	m, ok := f.metrics[name]
	if !ok {
		m = &fakeMetric{}
		f.metrics[name] = m
	}
	return m
}

func (f *fakeFactory) Counter(name string) observability.Counter     { return f.get(name) }
func (f *fakeFactory) Histogram(name string) observability.Histogram { return f.get(name) }

func TestMetricsExtension(t *testing.T) {
	ctx := context.Background()
	f := newFakeFactory()
	m := observability.NewMetricsExtension(f)
	a := &account.Account{}

	_ = m.OnAccountCreated(ctx, a)
	_ = m.OnDeposit(ctx, a, 100, 0)
	_ = m.OnDeposit(ctx, a, 50, 20)
	_ = m.OnRefundRequested(ctx, a, refund.Refund{Amount: 30})
	_ = m.OnRefundProcessed(ctx, a, 30)
	_ = m.OnTEESignerAcknowledged(ctx, a, true)
	_ = m.OnTEESignerAcknowledged(ctx, a, false)
	_ = m.OnDeliverableAdded(ctx, account.Key{}, deliverable.Deliverable{ID: "d1"})
	_ = m.OnDeliverableEvicted(ctx, account.Key{}, "d0")
	_ = m.OnDeliverableAcknowledged(ctx, account.Key{}, "d1")
	_ = m.OnDeliverableSettled(ctx, &deliverable.Settlement{Fee: 7, RefundsCancelled: 3})
	_ = m.OnAccountDeleted(ctx, account.Key{}, 4)

	counters := []struct {
		name string
		want float64
	}{
		{"escrow.account.created", 1},
		{"escrow.account.deleted", 1},
		{"escrow.account.tee_signer.acknowledged", 1},
		{"escrow.account.tee_signer.revoked", 1},
		{"escrow.deposit.count", 2},
		{"escrow.refund.cancelled_amount", 23},
		{"escrow.refund.requested", 1},
		{"escrow.refund.released_amount", 30},
		{"escrow.deliverable.added", 1},
		{"escrow.deliverable.evicted", 1},
		{"escrow.deliverable.acknowledged", 1},
		{"escrow.deliverable.settled", 1},
	}
	for _, tt := range counters {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.get(tt.name).total; got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if got := f.get("escrow.deposit.amount").observed; len(got) != 2 || got[0] != 100 || got[1] != 50 {
		t.Errorf("deposit amounts: %v", got)
	}
	if got := f.get("escrow.deliverable.settlement_fee").observed; len(got) != 1 || got[0] != 7 {
		t.Errorf("settlement fees: %v", got)
	}
}
