// Package observability provides a metrics extension for Escrow that records
// lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/deliverable"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/refund"
	"github.com/xraph/escrow/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                    = (*MetricsExtension)(nil)
	_ plugin.OnInit                    = (*MetricsExtension)(nil)
	_ plugin.OnAccountCreated          = (*MetricsExtension)(nil)
	_ plugin.OnAccountDeleted          = (*MetricsExtension)(nil)
	_ plugin.OnTEESignerAcknowledged   = (*MetricsExtension)(nil)
	_ plugin.OnDeposit                 = (*MetricsExtension)(nil)
	_ plugin.OnRefundRequested         = (*MetricsExtension)(nil)
	_ plugin.OnRefundProcessed         = (*MetricsExtension)(nil)
	_ plugin.OnDeliverableAdded        = (*MetricsExtension)(nil)
	_ plugin.OnDeliverableEvicted      = (*MetricsExtension)(nil)
	_ plugin.OnDeliverableAcknowledged = (*MetricsExtension)(nil)
	_ plugin.OnDeliverableSettled      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an Escrow plugin to automatically track escrow metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Account metrics
	AccountCreated   Counter
	AccountDeleted   Counter
	TEESignerAcked   Counter
	TEESignerRevoked Counter

	// Balance metrics
	Deposits         Counter
	DepositAmount    Histogram
	RefundsCancelled Counter

	// Refund metrics
	RefundRequested Counter
	RefundAmount    Histogram
	RefundReleased  Counter

	// Deliverable metrics
	DeliverableAdded        Counter
	DeliverableEvicted      Counter
	DeliverableAcknowledged Counter
	DeliverableSettled      Counter
	SettlementFee           Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Account metrics
		AccountCreated:   factory.Counter("escrow.account.created"),
		AccountDeleted:   factory.Counter("escrow.account.deleted"),
		TEESignerAcked:   factory.Counter("escrow.account.tee_signer.acknowledged"),
		TEESignerRevoked: factory.Counter("escrow.account.tee_signer.revoked"),

		// Balance metrics
		Deposits:         factory.Counter("escrow.deposit.count"),
		DepositAmount:    factory.Histogram("escrow.deposit.amount"),
		RefundsCancelled: factory.Counter("escrow.refund.cancelled_amount"),

		// Refund metrics
		RefundRequested: factory.Counter("escrow.refund.requested"),
		RefundAmount:    factory.Histogram("escrow.refund.amount"),
		RefundReleased:  factory.Counter("escrow.refund.released_amount"),

		// Deliverable metrics
		DeliverableAdded:        factory.Counter("escrow.deliverable.added"),
		DeliverableEvicted:      factory.Counter("escrow.deliverable.evicted"),
		DeliverableAcknowledged: factory.Counter("escrow.deliverable.acknowledged"),
		DeliverableSettled:      factory.Counter("escrow.deliverable.settled"),
		SettlementFee:           factory.Histogram("escrow.deliverable.settlement_fee"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (m *MetricsExtension) OnAccountCreated(_ context.Context, _ *account.Account) error {
	m.AccountCreated.Inc()
	return nil
}

// OnAccountDeleted implements plugin.OnAccountDeleted.
func (m *MetricsExtension) OnAccountDeleted(_ context.Context, _ account.Key, _ uint64) error {
	m.AccountDeleted.Inc()
	return nil
}

// OnTEESignerAcknowledged implements plugin.OnTEESignerAcknowledged.
func (m *MetricsExtension) OnTEESignerAcknowledged(_ context.Context, _ *account.Account, acknowledged bool) error {
	if acknowledged {
		m.TEESignerAcked.Inc()
	} else {
		m.TEESignerRevoked.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Balance and refund hooks
// ──────────────────────────────────────────────────

// OnDeposit implements plugin.OnDeposit.
func (m *MetricsExtension) OnDeposit(_ context.Context, _ *account.Account, amount, cancelled types.Amount) error {
	m.Deposits.Inc()
	m.DepositAmount.Observe(float64(amount))
	if cancelled > 0 {
		m.RefundsCancelled.Add(float64(cancelled))
	}
	return nil
}

// OnRefundRequested implements plugin.OnRefundRequested.
func (m *MetricsExtension) OnRefundRequested(_ context.Context, _ *account.Account, r refund.Refund) error {
	m.RefundRequested.Inc()
	m.RefundAmount.Observe(float64(r.Amount))
	return nil
}

// OnRefundProcessed implements plugin.OnRefundProcessed.
func (m *MetricsExtension) OnRefundProcessed(_ context.Context, _ *account.Account, released types.Amount) error {
	m.RefundReleased.Add(float64(released))
	return nil
}

// ──────────────────────────────────────────────────
// Deliverable hooks
// ──────────────────────────────────────────────────

// OnDeliverableAdded implements plugin.OnDeliverableAdded.
func (m *MetricsExtension) OnDeliverableAdded(_ context.Context, _ account.Key, _ deliverable.Deliverable) error {
	m.DeliverableAdded.Inc()
	return nil
}

// OnDeliverableEvicted implements plugin.OnDeliverableEvicted.
func (m *MetricsExtension) OnDeliverableEvicted(_ context.Context, _ account.Key, _ string) error {
	m.DeliverableEvicted.Inc()
	return nil
}

// OnDeliverableAcknowledged implements plugin.OnDeliverableAcknowledged.
func (m *MetricsExtension) OnDeliverableAcknowledged(_ context.Context, _ account.Key, _ string) error {
	m.DeliverableAcknowledged.Inc()
	return nil
}

// OnDeliverableSettled implements plugin.OnDeliverableSettled.
func (m *MetricsExtension) OnDeliverableSettled(_ context.Context, s *deliverable.Settlement) error {
	m.DeliverableSettled.Inc()
	m.SettlementFee.Observe(float64(s.Fee))
	if s.RefundsCancelled > 0 {
		m.RefundsCancelled.Add(float64(s.RefundsCancelled))
	}
	return nil
}
