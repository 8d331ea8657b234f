// Package pool is an in-memory constant-product liquidity book for the
// reference venue service. It prices exchanges, tracks lock tokens handed
// out by the settlement gateway, and journals every pull and release.
package pool

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrPoolNotFound          = errors.New("pool not found")
	ErrPairMismatch          = errors.New("pool does not trade this pair")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrLockHeld              = errors.New("lock token already held")
)

const bpsDenominator = 10000

// Pool is one two-asset constant-product market. Asset0 is the input leg of
// every exchange; callers orient the pair when they submit the request.
type Pool struct {
	ID       common.Hash
	Asset0   common.Address
	Asset1   common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
	FeeBps   uint32
}

// Transfer is one journal entry for funds moved through the venue.
type Transfer struct {
	Kind         string // "pull" or "release"
	Asset        common.Address
	Counterparty common.Address
	Amount       *big.Int
}

type Book struct {
	mu        sync.Mutex
	pools     map[common.Hash]*Pool
	locks     map[common.Hash]bool
	transfers []Transfer
}

func NewBook() *Book {
	return &Book{
		pools: map[common.Hash]*Pool{},
		locks: map[common.Hash]bool{},
	}
}

func (b *Book) AddPool(p Pool) error {
	if p.Reserve0 == nil || p.Reserve0.Sign() <= 0 || p.Reserve1 == nil || p.Reserve1.Sign() <= 0 {
		return fmt.Errorf("pool %s: reserves must be positive", p.ID.Hex())
	}
	if p.FeeBps >= bpsDenominator {
		return fmt.Errorf("pool %s: fee_bps must be below %d", p.ID.Hex(), bpsDenominator)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pools[p.ID] = &Pool{
		ID:       p.ID,
		Asset0:   p.Asset0,
		Asset1:   p.Asset1,
		Reserve0: new(big.Int).Set(p.Reserve0),
		Reserve1: new(big.Int).Set(p.Reserve1),
		FeeBps:   p.FeeBps,
	}
	return nil
}

// Lock records one in-flight settlement token. Each token is single-use.
func (b *Book) Lock(token common.Hash) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.locks[token] {
		return ErrLockHeld
	}
	b.locks[token] = true
	return nil
}

// Exchange prices amountOut of asset1 against the pool and applies the trade
// to the reserves. The returned input amount is what the payer owes; it is
// rounded up so truncation never shorts the pool.
func (b *Book) Exchange(id common.Hash, asset0, asset1 common.Address, amountOut *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pools[id]
	if !ok {
		return nil, ErrPoolNotFound
	}
	if p.Asset0 != asset0 || p.Asset1 != asset1 {
		return nil, ErrPairMismatch
	}
	if amountOut == nil || amountOut.Sign() <= 0 || amountOut.Cmp(p.Reserve1) >= 0 {
		return nil, ErrInsufficientLiquidity
	}

	// amountIn = ceil(reserve0*amountOut*10000 / ((reserve1-amountOut)*(10000-fee)))
	num := new(big.Int).Mul(p.Reserve0, amountOut)
	num.Mul(num, big.NewInt(bpsDenominator))
	den := new(big.Int).Sub(p.Reserve1, amountOut)
	den.Mul(den, big.NewInt(bpsDenominator-int64(p.FeeBps)))
	amountIn := new(big.Int).Div(num, den)
	if new(big.Int).Mul(amountIn, den).Cmp(num) < 0 {
		amountIn.Add(amountIn, big.NewInt(1))
	}

	p.Reserve0.Add(p.Reserve0, amountIn)
	p.Reserve1.Sub(p.Reserve1, amountOut)
	return amountIn, nil
}

func (b *Book) Pull(asset, payer common.Address, amount *big.Int) error {
	return b.journal("pull", asset, payer, amount)
}

func (b *Book) Release(asset, recipient common.Address, amount *big.Int) error {
	return b.journal("release", asset, recipient, amount)
}

func (b *Book) journal(kind string, asset, counterparty common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%s amount must be positive", kind)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transfers = append(b.transfers, Transfer{
		Kind:         kind,
		Asset:        asset,
		Counterparty: counterparty,
		Amount:       new(big.Int).Set(amount),
	})
	return nil
}

// Transfers returns a copy of the journal, oldest first.
func (b *Book) Transfers() []Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Transfer, len(b.transfers))
	copy(out, b.transfers)
	return out
}

// Reserves reports the current reserves of one pool.
func (b *Book) Reserves(id common.Hash) (*big.Int, *big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pools[id]
	if !ok {
		return nil, nil, ErrPoolNotFound
	}
	return new(big.Int).Set(p.Reserve0), new(big.Int).Set(p.Reserve1), nil
}
