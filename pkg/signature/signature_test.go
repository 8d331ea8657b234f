package signature

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestSignRecoverRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	digest := crypto.Keccak256Hash([]byte("settlement digest"))
	sig, err := Sign(digest, key)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Recover(digest, sig)
	if err != nil {
		t.Fatal(err)
	}
	want := crypto.PubkeyToAddress(key.PublicKey)
	if got != want {
		t.Fatalf("recovered %s, want %s", got.Hex(), want.Hex())
	}
	if err := Verify(digest, sig, want); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestRecoverAcceptsLegacyRecoveryByte(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	digest := crypto.Keccak256Hash([]byte("legacy v"))
	sig, err := Sign(digest, key)
	if err != nil {
		t.Fatal(err)
	}
	legacy := make([]byte, len(sig))
	copy(legacy, sig)
	legacy[64] += 27
	got, err := Recover(digest, legacy)
	if err != nil {
		t.Fatalf("legacy recovery byte rejected: %v", err)
	}
	if want := crypto.PubkeyToAddress(key.PublicKey); got != want {
		t.Fatalf("recovered %s, want %s", got.Hex(), want.Hex())
	}
}

func TestRecoverRejectsMalformedSignatures(t *testing.T) {
	digest := crypto.Keccak256Hash([]byte("malformed"))
	if _, err := Recover(digest, make([]byte, 64)); !errors.Is(err, ErrMalformedSignature) {
		t.Fatalf("short signature: got %v", err)
	}
	bad := make([]byte, 65)
	bad[64] = 5
	if _, err := Recover(digest, bad); !errors.Is(err, ErrMalformedSignature) {
		t.Fatalf("invalid recovery byte: got %v", err)
	}
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	digest := crypto.Keccak256Hash([]byte("wrong signer"))
	sig, err := Sign(digest, key)
	if err != nil {
		t.Fatal(err)
	}
	other := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	if err := Verify(digest, sig, other); !errors.Is(err, ErrSignerMismatch) {
		t.Fatalf("expected ErrSignerMismatch, got %v", err)
	}
}

func TestVerifyRejectsTamperedDigest(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	digest := crypto.Keccak256Hash([]byte("original"))
	sig, err := Sign(digest, key)
	if err != nil {
		t.Fatal(err)
	}
	tampered := crypto.Keccak256Hash([]byte("tampered"))
	if err := Verify(tampered, sig, crypto.PubkeyToAddress(key.PublicKey)); err == nil {
		t.Fatal("tampered digest must not verify")
	}
}
