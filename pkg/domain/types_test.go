package domain

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestValidateBoundsRejectsSlippageOverDenominator(t *testing.T) {
	p := Policy{
		MinAmountOut:       big.NewInt(1),
		ReferenceAmountOut: big.NewInt(1),
		MaxSlippageBps:     10001,
	}
	if err := p.ValidateBounds(); !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("expected ErrInvalidBounds, got %v", err)
	}
	p.MaxSlippageBps = 10000
	if err := p.ValidateBounds(); err != nil {
		t.Fatalf("10000 bps must be accepted: %v", err)
	}
}

func TestValidateBoundsRequiresAmounts(t *testing.T) {
	p := Policy{ReferenceAmountOut: big.NewInt(1)}
	if err := p.ValidateBounds(); !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("nil min_amount_out must fail, got %v", err)
	}
	p = Policy{MinAmountOut: big.NewInt(1)}
	if err := p.ValidateBounds(); !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("nil reference_amount_out must fail, got %v", err)
	}
}

func TestSlippageBoundTruncatesDown(t *testing.T) {
	cases := []struct {
		ref   int64
		bps   uint32
		bound int64
	}{
		{100, 500, 95},
		{100, 0, 100},
		{100, 10000, 0},
		{999, 1, 998},  // 999*9999/10000 = 998.9001 -> 998
		{3, 3333, 2},   // 3*6667/10000 = 2.0001 -> 2
		{1, 9999, 0},   // 1*1/10000 -> 0
	}
	for _, tc := range cases {
		p := Policy{
			MinAmountOut:       big.NewInt(0),
			ReferenceAmountOut: big.NewInt(tc.ref),
			MaxSlippageBps:     tc.bps,
		}
		if got := p.SlippageBound().Int64(); got != tc.bound {
			t.Fatalf("ref=%d bps=%d: bound=%d, want %d", tc.ref, tc.bps, got, tc.bound)
		}
	}
}

func TestSlippageBoundMonotoneInBps(t *testing.T) {
	prev := big.NewInt(1 << 40)
	for bps := uint32(0); bps <= 10000; bps += 97 {
		p := Policy{
			MinAmountOut:       big.NewInt(0),
			ReferenceAmountOut: big.NewInt(1_000_003),
			MaxSlippageBps:     bps,
		}
		bound := p.SlippageBound()
		if bound.Cmp(prev) > 0 {
			t.Fatalf("bound increased at bps=%d", bps)
		}
		prev = bound
	}
}

func TestEffectiveMinOutTakesLargerFloor(t *testing.T) {
	p := Policy{
		MinAmountOut:       big.NewInt(90),
		ReferenceAmountOut: big.NewInt(100),
		MaxSlippageBps:     500,
	}
	if got := p.EffectiveMinOut().Int64(); got != 95 {
		t.Fatalf("effective min = %d, want 95 (slippage bound dominates)", got)
	}
	p.MinAmountOut = big.NewInt(97)
	if got := p.EffectiveMinOut().Int64(); got != 97 {
		t.Fatalf("effective min = %d, want 97 (absolute floor dominates)", got)
	}
}

func TestPolicyExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	p := Policy{Deadline: uint64(now.Unix())}
	if p.ExpiredAt(now) {
		t.Fatal("deadline equal to now must not be expired")
	}
	p.Deadline = uint64(now.Unix()) - 1
	if !p.ExpiredAt(now) {
		t.Fatal("deadline before now must be expired")
	}
}

func TestVenueParamsMatchesUnorderedPair(t *testing.T) {
	a := common.HexToAddress("0x1111111111111111111111111111111111111111")
	b := common.HexToAddress("0x2222222222222222222222222222222222222222")
	c := common.HexToAddress("0x3333333333333333333333333333333333333333")
	v := VenueParams{Asset0: a, Asset1: b}
	if !v.MatchesPair(a, b) || !v.MatchesPair(b, a) {
		t.Fatal("pair must match in both orders")
	}
	if v.MatchesPair(a, c) || v.MatchesPair(c, b) {
		t.Fatal("unrelated pair must not match")
	}
}

func TestIntentValidate(t *testing.T) {
	valid := Intent{
		ID:           common.HexToHash("0x01"),
		User:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
		TokenIn:      common.HexToAddress("0x2222222222222222222222222222222222222222"),
		TokenOut:     common.HexToAddress("0x3333333333333333333333333333333333333333"),
		AmountIn:     big.NewInt(10),
		MinAmountOut: big.NewInt(9),
		Deadline:     1,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid intent rejected: %v", err)
	}

	broken := valid
	broken.AmountIn = big.NewInt(0)
	if err := broken.Validate(); err == nil {
		t.Fatal("zero amount_in must fail")
	}
	broken = valid
	broken.User = common.Address{}
	if err := broken.Validate(); err == nil {
		t.Fatal("zero user must fail")
	}
	broken = valid
	broken.Deadline = 0
	if err := broken.Validate(); err == nil {
		t.Fatal("zero deadline must fail")
	}
}
