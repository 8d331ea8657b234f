// Package intenthash computes the canonical typed-data digest an intent
// signature authorizes. The digest binds every settlement-relevant field of
// the intent plus a domain separator, so a signature cannot be replayed
// across chains or verifying deployments.
package intenthash

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"intentlane/pkg/domain"
)

var (
	domainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	intentTypeHash = crypto.Keccak256Hash([]byte(
		"Intent(bytes32 id,address user,address tokenIn,address tokenOut,uint256 amountIn,uint256 minAmountOut,uint256 deadline)"))
)

// Domain identifies the verifying context signatures are scoped to.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

func (d Domain) Separator() common.Hash {
	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		uintWord(d.ChainID),
		addressWord(d.VerifyingContract),
	)
}

// StructHash hashes the intent's typed fields as 32-byte words.
func StructHash(in domain.Intent) common.Hash {
	return crypto.Keccak256Hash(
		intentTypeHash.Bytes(),
		in.ID.Bytes(),
		addressWord(in.User),
		addressWord(in.TokenIn),
		addressWord(in.TokenOut),
		uintWord(in.AmountIn),
		uintWord(in.MinAmountOut),
		uintWord(new(big.Int).SetUint64(in.Deadline)),
	)
}

// Digest is the final signable hash: keccak256(0x19 0x01 || separator || structHash).
func Digest(d Domain, in domain.Intent) common.Hash {
	sep := d.Separator()
	structHash := StructHash(in)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, sep.Bytes(), structHash.Bytes())
}

func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

func uintWord(v *big.Int) []byte {
	if v == nil {
		v = new(big.Int)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}
