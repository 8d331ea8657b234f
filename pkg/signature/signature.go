package signature

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrSignerMismatch     = errors.New("signer mismatch")
)

// Sign produces a 65-byte r||s||v secp256k1 signature over a 32-byte digest.
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	return crypto.Sign(digest.Bytes(), key)
}

// Recover returns the address that produced sig over digest. The recovery
// byte may be 0/1 or the legacy 27/28 form.
func Recover(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrMalformedSignature
	}
	norm := make([]byte, crypto.SignatureLength)
	copy(norm, sig)
	if norm[64] >= 27 {
		norm[64] -= 27
	}
	if norm[64] > 1 {
		return common.Address{}, ErrMalformedSignature
	}
	pub, err := crypto.SigToPub(digest.Bytes(), norm)
	if err != nil {
		return common.Address{}, ErrMalformedSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that sig over digest recovers to signer.
func Verify(digest common.Hash, sig []byte, signer common.Address) error {
	recovered, err := Recover(digest, sig)
	if err != nil {
		return err
	}
	if recovered != signer {
		return ErrSignerMismatch
	}
	return nil
}
