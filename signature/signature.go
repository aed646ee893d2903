// Package signature verifies consumer and TEE signatures over delivery claims.
//
// Claims are EIP-712 typed data. The domain binds the scheme name and
// version, the chain id, and the verifying contract, so a signature made for
// one deployment cannot be replayed against another. The claim itself binds
// the deliverable id, so a signature over one deliverable cannot be replayed
// against a different one.
package signature

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/xraph/escrow/types"
)

// MaxIDLength bounds the deliverable id accepted for verification.
const MaxIDLength = 256

// Length is the size of an r||s||v signature.
const Length = 65

// Verification errors.
var (
	ErrInvalidSignature = errors.New("escrow: invalid signature")
	ErrIDTooLong        = errors.New("escrow: deliverable id too long")
)

const primaryType = "DeliveryClaim"

var claimTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	primaryType: {
		{Name: "id", Type: "string"},
		{Name: "contentHash", Type: "bytes32"},
		{Name: "encryptedPayloadHash", Type: "bytes32"},
		{Name: "nonce", Type: "uint256"},
		{Name: "fee", Type: "uint256"},
		{Name: "consumer", Type: "address"},
	},
}

// Domain separates signatures between deployments.
type Domain struct {
	Name              string         `json:"name" yaml:"name"`
	Version           string         `json:"version" yaml:"version"`
	ChainID           uint64         `json:"chain_id" yaml:"chain_id"`
	VerifyingContract common.Address `json:"verifying_contract" yaml:"verifying_contract"`
}

// DefaultDomain returns the domain used when none is configured.
func DefaultDomain() Domain {
	return Domain{
		Name:    "Escrow Delivery",
		Version: "1",
		ChainID: 1,
	}
}

func (d Domain) typed() apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(d.ChainID)),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}

// Claim is the message a consumer or TEE signer attests to.
type Claim struct {
	ID               string         `json:"id"`
	ContentHash      common.Hash    `json:"content_hash"`
	EncryptedPayload []byte         `json:"encrypted_payload,omitempty"`
	Nonce            uint64         `json:"nonce"`
	Fee              types.Amount   `json:"fee"`
	Consumer         common.Address `json:"consumer"`
}

// PayloadHash returns keccak256 of the encrypted payload.
func (c Claim) PayloadHash() common.Hash {
	return crypto.Keccak256Hash(c.EncryptedPayload)
}

func (c Claim) message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"id":                   c.ID,
		"contentHash":          c.ContentHash.Hex(),
		"encryptedPayloadHash": c.PayloadHash().Hex(),
		"nonce":                (*math.HexOrDecimal256)(new(big.Int).SetUint64(c.Nonce)),
		"fee":                  (*math.HexOrDecimal256)(new(big.Int).SetUint64(c.Fee.Uint64())),
		"consumer":             c.Consumer.Hex(),
	}
}

// Verifier checks claim signatures under one domain. The zero value is not
// usable; construct with NewVerifier.
type Verifier struct {
	domain Domain
}

// NewVerifier returns a verifier bound to domain.
func NewVerifier(domain Domain) *Verifier {
	return &Verifier{domain: domain}
}

// Domain returns the domain the verifier is bound to.
func (v *Verifier) Domain() Domain { return v.domain }

// Digest returns the EIP-712 hash a signer must sign for claim.
func (v *Verifier) Digest(claim Claim) (common.Hash, error) {
	if len(claim.ID) > MaxIDLength {
		return common.Hash{}, ErrIDTooLong
	}
	td := apitypes.TypedData{
		Types:       claimTypes,
		PrimaryType: primaryType,
		Domain:      v.domain.typed(),
		Message:     claim.message(),
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signature: hash claim: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// Recover returns the address that produced sig over claim.
//
// Only the canonical low-s form is accepted, v may be 0/1 or 27/28, and a
// recovery to the zero address is rejected.
func (v *Verifier) Recover(claim Claim, sig []byte) (common.Address, error) {
	digest, err := v.Digest(claim)
	if err != nil {
		return common.Address{}, err
	}
	if len(sig) != Length {
		return common.Address{}, ErrInvalidSignature
	}

	normalized := make([]byte, Length)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if !crypto.ValidateSignatureValues(normalized[64], r, s, true) {
		return common.Address{}, ErrInvalidSignature
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	addr := crypto.PubkeyToAddress(*pub)
	if addr == (common.Address{}) {
		return common.Address{}, ErrInvalidSignature
	}
	return addr, nil
}

// Verify checks that sig over claim was produced by signer.
func (v *Verifier) Verify(claim Claim, sig []byte, signer common.Address) error {
	if signer == (common.Address{}) {
		return ErrInvalidSignature
	}
	got, err := v.Recover(claim, sig)
	if err != nil {
		return err
	}
	if got != signer {
		return ErrInvalidSignature
	}
	return nil
}
