// Package audithook bridges Escrow lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/deliverable"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/refund"
	"github.com/xraph/escrow/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                    = (*Extension)(nil)
	_ plugin.OnAccountCreated          = (*Extension)(nil)
	_ plugin.OnAccountDeleted          = (*Extension)(nil)
	_ plugin.OnTEESignerAcknowledged   = (*Extension)(nil)
	_ plugin.OnDeposit                 = (*Extension)(nil)
	_ plugin.OnRefundRequested         = (*Extension)(nil)
	_ plugin.OnRefundProcessed         = (*Extension)(nil)
	_ plugin.OnDeliverableAdded        = (*Extension)(nil)
	_ plugin.OnDeliverableEvicted      = (*Extension)(nil)
	_ plugin.OnDeliverableAcknowledged = (*Extension)(nil)
	_ plugin.OnDeliverableSettled      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly. Callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Escrow lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (e *Extension) OnAccountCreated(ctx context.Context, acct *account.Account) error {
	return e.record(ctx, ActionAccountCreated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, acct.Key().String(), CategoryAccount, nil,
		"consumer", acct.Consumer.Hex(),
		"provider", acct.Provider.Hex(),
		"balance", int64(acct.Balance),
		"nonce", acct.Nonce,
	)
}

// OnAccountDeleted implements plugin.OnAccountDeleted.
func (e *Extension) OnAccountDeleted(ctx context.Context, key account.Key, nonce uint64) error {
	return e.record(ctx, ActionAccountDeleted, SeverityWarning, OutcomeSuccess,
		ResourceAccount, key.String(), CategoryAccount, nil,
		"consumer", key.Consumer.Hex(),
		"provider", key.Provider.Hex(),
		"nonce", nonce,
	)
}

// OnTEESignerAcknowledged implements plugin.OnTEESignerAcknowledged.
func (e *Extension) OnTEESignerAcknowledged(ctx context.Context, acct *account.Account, acknowledged bool) error {
	action := ActionTEESignerAcked
	if !acknowledged {
		action = ActionTEESignerRevoked
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceAccount, acct.Key().String(), CategoryAccess, nil,
		"acknowledged", acknowledged,
	)
}

// ──────────────────────────────────────────────────
// Balance and refund hooks
// ──────────────────────────────────────────────────

// OnDeposit implements plugin.OnDeposit.
func (e *Extension) OnDeposit(ctx context.Context, acct *account.Account, amount, cancelled types.Amount) error {
	return e.record(ctx, ActionDepositReceived, SeverityInfo, OutcomeSuccess,
		ResourceAccount, acct.Key().String(), CategoryBalance, nil,
		"amount", int64(amount),
		"refunds_cancelled", int64(cancelled),
		"balance", int64(acct.Balance),
	)
}

// OnRefundRequested implements plugin.OnRefundRequested.
func (e *Extension) OnRefundRequested(ctx context.Context, acct *account.Account, r refund.Refund) error {
	return e.record(ctx, ActionRefundRequested, SeverityInfo, OutcomeSuccess,
		ResourceRefund, acct.Key().String(), CategoryBalance, nil,
		"index", r.Index,
		"amount", int64(r.Amount),
		"pending", int64(acct.PendingRefund()),
	)
}

// OnRefundProcessed implements plugin.OnRefundProcessed.
func (e *Extension) OnRefundProcessed(ctx context.Context, acct *account.Account, released types.Amount) error {
	return e.record(ctx, ActionRefundProcessed, SeverityInfo, OutcomeSuccess,
		ResourceRefund, acct.Key().String(), CategoryPayment, nil,
		"released", int64(released),
		"balance", int64(acct.Balance),
	)
}

// ──────────────────────────────────────────────────
// Deliverable hooks
// ──────────────────────────────────────────────────

// OnDeliverableAdded implements plugin.OnDeliverableAdded.
func (e *Extension) OnDeliverableAdded(ctx context.Context, key account.Key, d deliverable.Deliverable) error {
	return e.record(ctx, ActionDeliverableAdded, SeverityInfo, OutcomeSuccess,
		ResourceDeliverable, d.ID, CategoryDelivery, nil,
		"account", key.String(),
		"content_hash", d.ContentHash.Hex(),
	)
}

// OnDeliverableEvicted implements plugin.OnDeliverableEvicted.
func (e *Extension) OnDeliverableEvicted(ctx context.Context, key account.Key, deliverableID string) error {
	return e.record(ctx, ActionDeliverableEvicted, SeverityInfo, OutcomeSuccess,
		ResourceDeliverable, deliverableID, CategoryDelivery, nil,
		"account", key.String(),
	)
}

// OnDeliverableAcknowledged implements plugin.OnDeliverableAcknowledged.
func (e *Extension) OnDeliverableAcknowledged(ctx context.Context, key account.Key, deliverableID string) error {
	return e.record(ctx, ActionDeliverableAcked, SeverityInfo, OutcomeSuccess,
		ResourceDeliverable, deliverableID, CategoryDelivery, nil,
		"account", key.String(),
	)
}

// OnDeliverableSettled implements plugin.OnDeliverableSettled.
func (e *Extension) OnDeliverableSettled(ctx context.Context, s *deliverable.Settlement) error {
	return e.record(ctx, ActionDeliverableSettled, SeverityInfo, OutcomeSuccess,
		ResourceDeliverable, s.DeliverableID, CategoryPayment, nil,
		"settlement_id", s.ID.String(),
		"consumer", s.Consumer.Hex(),
		"provider", s.Provider.Hex(),
		"fee", int64(s.Fee),
		"nonce", s.Nonce,
		"refunds_cancelled", int64(s.RefundsCancelled),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
