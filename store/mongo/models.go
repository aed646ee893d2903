package mongo

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/deliverable"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/refund"
	"github.com/xraph/escrow/types"
)

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:escrow_accounts"`

	AccountKey            string       `grove:"account_key,pk"          bson:"_id"`
	ID                    string       `grove:"id"                      bson:"id"`
	Consumer              string       `grove:"consumer"                bson:"consumer"`
	Provider              string       `grove:"provider"                bson:"provider"`
	Nonce                 int64        `grove:"nonce"                   bson:"nonce"`
	Balance               int64        `grove:"balance"                 bson:"balance"`
	AdditionalInfo        string       `grove:"additional_info"         bson:"additional_info"`
	TEESignerAcknowledged bool         `grove:"tee_signer_acknowledged" bson:"tee_signer_acknowledged"`
	Refunds               refundsModel `grove:"refunds"                 bson:"refunds"`
	Deliverables          journalModel `grove:"deliverables"            bson:"deliverables"`
	Deleted               bool         `grove:"deleted"                 bson:"deleted"`
	CreatedAt             time.Time    `grove:"created_at"              bson:"created_at"`
	UpdatedAt             time.Time    `grove:"updated_at"              bson:"updated_at"`
}

type refundsModel struct {
	Refunds     []refundModel `bson:"refunds"`
	ActiveCount int           `bson:"active_count"`
	Pending     int64         `bson:"pending"`
}

type refundModel struct {
	Index     int       `bson:"index"`
	Amount    int64     `bson:"amount"`
	CreatedAt time.Time `bson:"created_at"`
}

// journalModel stores records as an array rather than a document keyed by
// deliverable id, since ids may contain characters that are not valid in
// field names.
type journalModel struct {
	Ring    []string           `bson:"ring"`
	Head    int                `bson:"head"`
	Count   int                `bson:"count"`
	Records []deliverableModel `bson:"records"`
}

type deliverableModel struct {
	ID               string    `bson:"id"`
	ContentHash      string    `bson:"content_hash"`
	EncryptedPayload []byte    `bson:"encrypted_payload,omitempty"`
	Acknowledged     bool      `bson:"acknowledged"`
	Settled          bool      `bson:"settled"`
	Timestamp        time.Time `bson:"timestamp"`
}

func toAccountModel(a *account.Account) *accountModel {
	refunds := refundsModel{
		Refunds:     make([]refundModel, len(a.Refunds.Refunds)),
		ActiveCount: a.Refunds.ActiveCount,
		Pending:     int64(a.Refunds.Pending),
	}
	for i, r := range a.Refunds.Refunds {
		refunds.Refunds[i] = refundModel{
			Index:     r.Index,
			Amount:    int64(r.Amount),
			CreatedAt: r.CreatedAt,
		}
	}

	journal := journalModel{
		Ring:    a.Deliverables.Ring[:],
		Head:    a.Deliverables.Head,
		Count:   a.Deliverables.Count,
		Records: make([]deliverableModel, 0, len(a.Deliverables.Records)),
	}
	for _, d := range a.Deliverables.List() {
		journal.Records = append(journal.Records, deliverableModel{
			ID:               d.ID,
			ContentHash:      d.ContentHash.Hex(),
			EncryptedPayload: d.EncryptedPayload,
			Acknowledged:     d.Acknowledged,
			Settled:          d.Settled,
			Timestamp:        d.Timestamp,
		})
	}

	return &accountModel{
		AccountKey:            a.Key().String(),
		ID:                    a.ID.String(),
		Consumer:              a.Consumer.Hex(),
		Provider:              a.Provider.Hex(),
		Nonce:                 int64(a.Nonce), //nolint:gosec // bit-preserving, reversed in fromAccountModel
		Balance:               int64(a.Balance),
		AdditionalInfo:        a.AdditionalInfo,
		TEESignerAcknowledged: a.TEESignerAcknowledged,
		Refunds:               refunds,
		Deliverables:          journal,
		CreatedAt:             a.CreatedAt,
		UpdatedAt:             a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}

	refunds := refund.Ledger{
		ActiveCount: m.Refunds.ActiveCount,
		Pending:     types.Amount(m.Refunds.Pending),
	}
	if len(m.Refunds.Refunds) > 0 {
		refunds.Refunds = make([]refund.Refund, len(m.Refunds.Refunds))
		for i, r := range m.Refunds.Refunds {
			refunds.Refunds[i] = refund.Refund{
				Index:     r.Index,
				Amount:    types.Amount(r.Amount),
				CreatedAt: r.CreatedAt,
			}
		}
	}

	journal := deliverable.Journal{
		Head:  m.Deliverables.Head,
		Count: m.Deliverables.Count,
	}
	copy(journal.Ring[:], m.Deliverables.Ring)
	if len(m.Deliverables.Records) > 0 {
		journal.Records = make(map[string]deliverable.Deliverable, len(m.Deliverables.Records))
		for _, d := range m.Deliverables.Records {
			journal.Records[d.ID] = deliverable.Deliverable{
				ID:               d.ID,
				ContentHash:      common.HexToHash(d.ContentHash),
				EncryptedPayload: d.EncryptedPayload,
				Acknowledged:     d.Acknowledged,
				Settled:          d.Settled,
				Timestamp:        d.Timestamp,
			}
		}
	}

	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                    accountID,
		Consumer:              common.HexToAddress(m.Consumer),
		Provider:              common.HexToAddress(m.Provider),
		Nonce:                 uint64(m.Nonce), //nolint:gosec // see toAccountModel
		Balance:               types.Amount(m.Balance),
		AdditionalInfo:        m.AdditionalInfo,
		TEESignerAcknowledged: m.TEESignerAcknowledged,
		Refunds:               refunds,
		Deliverables:          journal,
	}, nil
}
