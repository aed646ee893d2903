// Package plugin provides an extensible plugin system for Escrow.
// Plugins can hook into account, refund, and deliverable lifecycle events.
// Hooks run only after the triggering call has been committed to the store.
package plugin

import (
	"context"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/deliverable"
	"github.com/xraph/escrow/refund"
	"github.com/xraph/escrow/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, e interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountCreated is called when an account is created or re-created.
type OnAccountCreated interface {
	Plugin
	OnAccountCreated(ctx context.Context, a *account.Account) error
}

// OnAccountDeleted is called when an account is soft-deleted.
type OnAccountDeleted interface {
	Plugin
	OnAccountDeleted(ctx context.Context, key account.Key, nonce uint64) error
}

// OnTEESignerAcknowledged is called when the TEE signer flag changes.
type OnTEESignerAcknowledged interface {
	Plugin
	OnTEESignerAcknowledged(ctx context.Context, a *account.Account, acknowledged bool) error
}

// ──────────────────────────────────────────────────
// Balance and refund hooks
// ──────────────────────────────────────────────────

// OnDeposit is called after funds are credited. cancelled is the pending
// refund amount reclaimed by the deposit.
type OnDeposit interface {
	Plugin
	OnDeposit(ctx context.Context, a *account.Account, amount, cancelled types.Amount) error
}

// OnRefundRequested is called when a refund is locked.
type OnRefundRequested interface {
	Plugin
	OnRefundRequested(ctx context.Context, a *account.Account, r refund.Refund) error
}

// OnRefundProcessed is called when matured refunds are paid out.
type OnRefundProcessed interface {
	Plugin
	OnRefundProcessed(ctx context.Context, a *account.Account, released types.Amount) error
}

// ──────────────────────────────────────────────────
// Deliverable hooks
// ──────────────────────────────────────────────────

// OnDeliverableAdded is called when a provider submits a deliverable.
type OnDeliverableAdded interface {
	Plugin
	OnDeliverableAdded(ctx context.Context, key account.Key, d deliverable.Deliverable) error
}

// OnDeliverableEvicted is called when a full journal drops its oldest entry.
type OnDeliverableEvicted interface {
	Plugin
	OnDeliverableEvicted(ctx context.Context, key account.Key, deliverableID string) error
}

// OnDeliverableAcknowledged is called when a consumer acknowledges a deliverable.
type OnDeliverableAcknowledged interface {
	Plugin
	OnDeliverableAcknowledged(ctx context.Context, key account.Key, deliverableID string) error
}

// OnDeliverableSettled is called when a deliverable's fee is charged.
type OnDeliverableSettled interface {
	Plugin
	OnDeliverableSettled(ctx context.Context, s *deliverable.Settlement) error
}
