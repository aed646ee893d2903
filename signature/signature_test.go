package signature_test

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xraph/escrow/signature"
)

func testClaim() signature.Claim {
	return signature.Claim{
		ID:               "task-1",
		ContentHash:      crypto.Keccak256Hash([]byte("content")),
		EncryptedPayload: []byte("sealed"),
		Nonce:            3,
		Fee:              150,
		Consumer:         common.HexToAddress("0x00000000000000000000000000000000000000c1"),
	}
}

func sign(t *testing.T, v *signature.Verifier, key *ecdsa.PrivateKey, claim signature.Claim) []byte {
	t.Helper()
	digest, err := v.Digest(claim)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func TestVerifyValid(t *testing.T) {
	v := signature.NewVerifier(signature.DefaultDomain())
	key, addr := newKey(t)
	claim := testClaim()
	sig := sign(t, v, key, claim)

	if err := v.Verify(claim, sig, addr); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// 27/28 recovery ids are accepted as well.
	legacy := append([]byte(nil), sig...)
	legacy[64] += 27
	if err := v.Verify(claim, legacy, addr); err != nil {
		t.Fatalf("verify with v+27: %v", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	v := signature.NewVerifier(signature.DefaultDomain())
	key, addr := newKey(t)
	_, other := newKey(t)
	claim := testClaim()
	sig := sign(t, v, key, claim)

	altered := claim
	altered.ID = "task-2"

	otherFee := claim
	otherFee.Fee = 151

	otherPayload := claim
	otherPayload.EncryptedPayload = []byte("tampered")

	badV := append([]byte(nil), sig...)
	badV[64] = 5

	tests := []struct {
		name    string
		claim   signature.Claim
		sig     []byte
		signer  common.Address
		wantErr error
	}{
		{"AlteredID", altered, sig, addr, signature.ErrInvalidSignature},
		{"AlteredFee", otherFee, sig, addr, signature.ErrInvalidSignature},
		{"AlteredPayload", otherPayload, sig, addr, signature.ErrInvalidSignature},
		{"WrongSigner", claim, sig, other, signature.ErrInvalidSignature},
		{"ZeroSigner", claim, sig, common.Address{}, signature.ErrInvalidSignature},
		{"Short", claim, sig[:64], addr, signature.ErrInvalidSignature},
		{"Empty", claim, nil, addr, signature.ErrInvalidSignature},
		{"BadRecoveryID", claim, badV, addr, signature.ErrInvalidSignature},
		{"ZeroRS", claim, make([]byte, signature.Length), addr, signature.ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.claim, tt.sig, tt.signer)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyRejectsHighS(t *testing.T) {
	v := signature.NewVerifier(signature.DefaultDomain())
	key, addr := newKey(t)
	claim := testClaim()
	sig := sign(t, v, key, claim)

	// Flip to the other valid representation: s' = N - s with the
	// recovery id inverted.
	n := crypto.S256().Params().N
	s := new(big.Int).SetBytes(sig[32:64])
	high := new(big.Int).Sub(n, s)

	malleable := make([]byte, signature.Length)
	copy(malleable[:32], sig[:32])
	high.FillBytes(malleable[32:64])
	malleable[64] = sig[64] ^ 1

	if err := v.Verify(claim, malleable, addr); !errors.Is(err, signature.ErrInvalidSignature) {
		t.Fatalf("expected high-s rejection, got %v", err)
	}
}

func TestDomainSeparation(t *testing.T) {
	key, addr := newKey(t)
	claim := testClaim()

	base := signature.DefaultDomain()
	sig := sign(t, signature.NewVerifier(base), key, claim)

	otherChain := base
	otherChain.ChainID = 5

	otherContract := base
	otherContract.VerifyingContract = common.HexToAddress("0x00000000000000000000000000000000000000ff")

	otherVersion := base
	otherVersion.Version = "2"

	for name, d := range map[string]signature.Domain{
		"ChainID":  otherChain,
		"Contract": otherContract,
		"Version":  otherVersion,
	} {
		t.Run(name, func(t *testing.T) {
			err := signature.NewVerifier(d).Verify(claim, sig, addr)
			if !errors.Is(err, signature.ErrInvalidSignature) {
				t.Errorf("expected rejection across domains, got %v", err)
			}
		})
	}
}

func TestIDTooLong(t *testing.T) {
	v := signature.NewVerifier(signature.DefaultDomain())
	claim := testClaim()
	claim.ID = strings.Repeat("a", signature.MaxIDLength+1)

	if _, err := v.Digest(claim); !errors.Is(err, signature.ErrIDTooLong) {
		t.Errorf("digest: expected ErrIDTooLong, got %v", err)
	}
	if err := v.Verify(claim, make([]byte, signature.Length), common.HexToAddress("0x01")); !errors.Is(err, signature.ErrIDTooLong) {
		t.Errorf("verify: expected ErrIDTooLong, got %v", err)
	}
}

func TestRecover(t *testing.T) {
	v := signature.NewVerifier(signature.DefaultDomain())
	key, addr := newKey(t)
	claim := testClaim()

	got, err := v.Recover(claim, sign(t, v, key, claim))
	if err != nil {
		t.Fatal(err)
	}
	if got != addr {
		t.Errorf("recovered %s, want %s", got.Hex(), addr.Hex())
	}
}
