package sqlite

import (
	"encoding/json"
	"fmt"
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

	AccountKey            string          `grove:"account_key,pk"`
	ID                    string          `grove:"id"`
	Consumer              string          `grove:"consumer"`
	Provider              string          `grove:"provider"`
	Nonce                 int64           `grove:"nonce"`
	Balance               int64           `grove:"balance"`
	AdditionalInfo        string          `grove:"additional_info"`
	TEESignerAcknowledged bool            `grove:"tee_signer_acknowledged"`
	Refunds               json.RawMessage `grove:"refunds,type:jsonb"`
	Deliverables          json.RawMessage `grove:"deliverables,type:jsonb"`
	Deleted               bool            `grove:"deleted"`
	CreatedAt             time.Time       `grove:"created_at"`
	UpdatedAt             time.Time       `grove:"updated_at"`
}

func toAccountModel(a *account.Account) (*accountModel, error) {
	refunds, err := json.Marshal(a.Refunds)
	if err != nil {
		return nil, fmt.Errorf("escrow/sqlite: encode refunds: %w", err)
	}
	deliverables, err := json.Marshal(a.Deliverables)
	if err != nil {
		return nil, fmt.Errorf("escrow/sqlite: encode deliverables: %w", err)
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
		Deliverables:          deliverables,
		CreatedAt:             a.CreatedAt,
		UpdatedAt:             a.UpdatedAt,
	}, nil
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}

	var refunds refund.Ledger
	if len(m.Refunds) > 0 {
		if err := json.Unmarshal(m.Refunds, &refunds); err != nil {
			return nil, fmt.Errorf("escrow/sqlite: decode refunds of %s: %w", m.AccountKey, err)
		}
	}

	var journal deliverable.Journal
	if len(m.Deliverables) > 0 {
		if err := json.Unmarshal(m.Deliverables, &journal); err != nil {
			return nil, fmt.Errorf("escrow/sqlite: decode deliverables of %s: %w", m.AccountKey, err)
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
