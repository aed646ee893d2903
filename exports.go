package escrow

import (
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/deliverable"
	"github.com/xraph/escrow/refund"
	"github.com/xraph/escrow/signature"
	"github.com/xraph/escrow/types"
)

// Re-export common types for convenience so users don't have to import the
// sub-packages for everyday calls.

// Amount is re-exported from types package.
type Amount = types.Amount

// Entity is re-exported from types package.
type Entity = types.Entity

// Account is re-exported from account package.
type Account = account.Account

// Key is re-exported from account package.
type Key = account.Key

// ListOpts is re-exported from account package.
type ListOpts = account.ListOpts

// Refund is re-exported from refund package.
type Refund = refund.Refund

// Deliverable is re-exported from deliverable package.
type Deliverable = deliverable.Deliverable

// Settlement is re-exported from deliverable package.
type Settlement = deliverable.Settlement

// Claim is re-exported from signature package.
type Claim = signature.Claim

// Domain is re-exported from signature package.
type Domain = signature.Domain

// Bounds.
const (
	MaxRefunds      = refund.MaxRefunds
	MaxDeliverables = deliverable.Capacity
	MaxIDLength     = deliverable.MaxIDLength
	MaxInfoLength   = account.MaxInfoLength
	MaxBatchSize    = account.MaxBatchSize
)

// Re-export constructors
var (
	NewKey        = account.NewKey
	NewEntity     = types.NewEntity
	ParseAmount   = types.ParseAmount
	DefaultDomain = signature.DefaultDomain
)
