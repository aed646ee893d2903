// Package deliverable implements the per-account journal of delivery receipts.
//
// The journal is a fixed ring of Capacity ids paired with a map from id to
// record. Providers submit strictly serially: a new deliverable is accepted
// only once the previous one has been acknowledged, which is what makes it
// safe to evict the oldest entry when the ring is full.
package deliverable

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/types"
)

const (
	// Capacity is the number of deliverables retained per account.
	Capacity = 20

	// MaxIDLength bounds deliverable ids in bytes. The signature package
	// applies the same bound.
	MaxIDLength = 256
)

// Journal errors.
var (
	ErrNotFound                = errors.New("escrow: deliverable not found")
	ErrAlreadyExists           = errors.New("escrow: deliverable already exists")
	ErrInvalidIDLength         = errors.New("escrow: invalid deliverable id length")
	ErrPreviousNotAcknowledged = errors.New("escrow: previous deliverable not acknowledged")
	ErrAlreadySettled          = errors.New("escrow: deliverable already settled")
	ErrNotAcknowledged         = errors.New("escrow: deliverable not acknowledged")
)

// Deliverable is a provider-submitted proof-of-work receipt.
type Deliverable struct {
	ID               string      `json:"id"`
	ContentHash      common.Hash `json:"content_hash"`
	EncryptedPayload []byte      `json:"encrypted_payload,omitempty"`
	Acknowledged     bool        `json:"acknowledged"`
	Settled          bool        `json:"settled"`
	Timestamp        time.Time   `json:"timestamp"`
}

// Journal is the deliverable log embedded in an account.
type Journal struct {
	Ring    [Capacity]string       `json:"ring"`
	Head    int                    `json:"head"`
	Count   int                    `json:"count"`
	Records map[string]Deliverable `json:"records"`
}

// Settlement records a deliverable whose fee has been charged.
// RefundsCancelled is the pending refund amount trimmed so the balance still
// covers outstanding refunds after the fee was taken.
type Settlement struct {
	ID               id.SettlementID `json:"id"`
	Consumer         common.Address  `json:"consumer"`
	Provider         common.Address  `json:"provider"`
	DeliverableID    string          `json:"deliverable_id"`
	Fee              types.Amount    `json:"fee"`
	Nonce            uint64          `json:"nonce"`
	RefundsCancelled types.Amount    `json:"refunds_cancelled"`
	SettledAt        time.Time       `json:"settled_at"`
}
