package constraint

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"intentlane/pkg/access"
	"intentlane/pkg/domain"
	"intentlane/pkg/storage"
)

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	updater = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	rando   = common.HexToAddress("0x00000000000000000000000000000000000000ee")

	intentID = common.HexToHash("0x0042")
)

var now = time.Unix(1_700_000_000, 0)

func newEngine(t *testing.T) (*Engine, *storage.MemStore) {
	t.Helper()
	st := storage.NewMemStore(owner)
	e := NewEngine(st, access.New(st))
	e.WithClock(func() time.Time { return now })
	return e, st
}

func basePolicy() domain.Policy {
	return domain.Policy{
		IntentID:           intentID,
		MinAmountOut:       big.NewInt(90),
		ReferenceAmountOut: big.NewInt(100),
		MaxSlippageBps:     500,
		Deadline:           uint64(now.Unix()) + 86400,
		DelegatedUpdater:   updater,
	}
}

func TestCreatePolicyAuthorization(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	if err := e.CreatePolicy(ctx, rando, basePolicy()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stranger create: got %v", err)
	}
	if err := e.CreatePolicy(ctx, owner, basePolicy()); err != nil {
		t.Fatalf("owner create: %v", err)
	}

	// A globally delegated updater may also register policies.
	if err := e.SetDelegatedUpdater(ctx, owner, rando, true); err != nil {
		t.Fatal(err)
	}
	if err := e.CreatePolicy(ctx, rando, basePolicy()); err != nil {
		t.Fatalf("global updater create: %v", err)
	}
}

func TestCreatePolicyRejectsBadBounds(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	p := basePolicy()
	p.MaxSlippageBps = 10001
	if err := e.CreatePolicy(ctx, owner, p); !errors.Is(err, domain.ErrInvalidBounds) {
		t.Fatalf("expected ErrInvalidBounds, got %v", err)
	}
}

func TestCreatePolicyOverwrites(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)

	if err := e.CreatePolicy(ctx, owner, basePolicy()); err != nil {
		t.Fatal(err)
	}
	p := basePolicy()
	p.MinAmountOut = big.NewInt(99)
	if err := e.CreatePolicy(ctx, owner, p); err != nil {
		t.Fatal(err)
	}
	got, ok, _ := st.GetPolicy(ctx, intentID)
	if !ok || got.MinAmountOut.Int64() != 99 {
		t.Fatalf("overwrite lost: %+v ok=%v", got, ok)
	}
}

func TestUpdateBoundsAuthorizationMatrix(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)
	if err := e.CreatePolicy(ctx, owner, basePolicy()); err != nil {
		t.Fatal(err)
	}

	// Neither owner nor the policy's updater: bounds unchanged.
	err := e.UpdateBounds(ctx, rando, intentID, big.NewInt(1), big.NewInt(1), 0, basePolicy().Deadline)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stranger update: got %v", err)
	}
	got, _, _ := st.GetPolicy(ctx, intentID)
	if got.MinAmountOut.Int64() != 90 {
		t.Fatal("failed update must leave bounds unchanged")
	}

	// The policy's delegated updater may loosen bounds.
	if err := e.UpdateBounds(ctx, updater, intentID, big.NewInt(50), big.NewInt(100), 2000, basePolicy().Deadline); err != nil {
		t.Fatalf("policy updater: %v", err)
	}
	got, _, _ = st.GetPolicy(ctx, intentID)
	if got.MinAmountOut.Int64() != 50 || got.MaxSlippageBps != 2000 {
		t.Fatalf("update not applied: %+v", got)
	}

	// The owner may update any policy.
	if err := e.UpdateBounds(ctx, owner, intentID, big.NewInt(95), big.NewInt(100), 100, basePolicy().Deadline); err != nil {
		t.Fatalf("owner update: %v", err)
	}
}

func TestUpdateBoundsMissingPolicy(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	err := e.UpdateBounds(ctx, owner, intentID, big.NewInt(1), big.NewInt(1), 0, 1)
	if !errors.Is(err, domain.ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound, got %v", err)
	}
}

func TestUpdateBoundsRejectsBadBounds(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	if err := e.CreatePolicy(ctx, owner, basePolicy()); err != nil {
		t.Fatal(err)
	}
	err := e.UpdateBounds(ctx, owner, intentID, big.NewInt(1), big.NewInt(1), 10001, 1)
	if !errors.Is(err, domain.ErrInvalidBounds) {
		t.Fatalf("expected ErrInvalidBounds, got %v", err)
	}
}

func TestEvaluateMissingPolicy(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	dec, err := e.Evaluate(ctx, intentID, big.NewInt(100))
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed || dec.Reason != domain.ReasonPolicyMissing {
		t.Fatalf("decision=%+v", dec)
	}
}

func TestEvaluateExpiredPolicyRegardlessOfQuote(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	p := basePolicy()
	p.Deadline = uint64(now.Unix()) - 1
	if err := e.CreatePolicy(ctx, owner, p); err != nil {
		t.Fatal(err)
	}
	for _, quoted := range []int64{1, 95, 1 << 40} {
		dec, err := e.Evaluate(ctx, intentID, big.NewInt(quoted))
		if err != nil {
			t.Fatal(err)
		}
		if dec.Allowed || dec.Reason != domain.ReasonPolicyExpired {
			t.Fatalf("quoted=%d decision=%+v", quoted, dec)
		}
	}
}

func TestEvaluateSlippageBoundScenario(t *testing.T) {
	// Policy {min 90, ref 100, 500 bps}: bound = 95.
	ctx := context.Background()
	e, _ := newEngine(t)
	if err := e.CreatePolicy(ctx, owner, basePolicy()); err != nil {
		t.Fatal(err)
	}

	dec, err := e.Evaluate(ctx, intentID, big.NewInt(94))
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed || dec.Reason != domain.ReasonSlippageExceeded {
		t.Fatalf("quoted 94: decision=%+v", dec)
	}
	if dec.EffectiveMinOut.Int64() != 95 {
		t.Fatalf("effective min = %s, want 95", dec.EffectiveMinOut)
	}

	dec, err = e.Evaluate(ctx, intentID, big.NewInt(95))
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allowed || dec.Reason != domain.ReasonOK {
		t.Fatalf("quoted 95: decision=%+v", dec)
	}
}

func TestEvaluateFailClosedTruthTable(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	cases := []struct {
		name    string
		min     int64
		ref     int64
		bps     uint32
		quoted  int64
		allowed bool
	}{
		{"quote above both floors", 90, 100, 500, 100, true},
		{"quote at absolute floor dominating", 97, 100, 500, 97, true},
		{"quote below absolute floor", 97, 100, 500, 96, false},
		{"zero slippage needs full reference", 0, 100, 0, 99, false},
		{"full slippage only absolute floor", 50, 100, 10000, 50, true},
		{"full slippage below absolute floor", 50, 100, 10000, 49, false},
	}
	for _, tc := range cases {
		p := basePolicy()
		p.MinAmountOut = big.NewInt(tc.min)
		p.ReferenceAmountOut = big.NewInt(tc.ref)
		p.MaxSlippageBps = tc.bps
		if err := e.CreatePolicy(ctx, owner, p); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		dec, err := e.Evaluate(ctx, intentID, big.NewInt(tc.quoted))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if dec.Allowed != tc.allowed {
			t.Fatalf("%s: allowed=%v, want %v (reason %s)", tc.name, dec.Allowed, tc.allowed, dec.Reason)
		}
	}
}

func TestEvaluateEmitsAuditEvent(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)
	if err := e.CreatePolicy(ctx, owner, basePolicy()); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Evaluate(ctx, intentID, big.NewInt(95)); err != nil {
		t.Fatal(err)
	}
	events, err := st.ListEvents(ctx, intentID)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, e := range events {
		if e.Type == domain.EventPolicyEvaluated {
			found = true
		}
	}
	if !found {
		t.Fatal("evaluate must leave an audit event")
	}
}
