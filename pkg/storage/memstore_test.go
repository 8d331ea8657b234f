package storage

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"intentlane/pkg/domain"
)

var (
	testOwner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	intentA   = common.HexToHash("0x0a")
	intentB   = common.HexToHash("0x0b")
)

func TestPolicyOverwrite(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore(testOwner)

	if _, ok, err := st.GetPolicy(ctx, intentA); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	first := domain.Policy{IntentID: intentA, MinAmountOut: big.NewInt(1), ReferenceAmountOut: big.NewInt(2)}
	if err := st.PutPolicy(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := first
	second.MinAmountOut = big.NewInt(7)
	if err := st.PutPolicy(ctx, second); err != nil {
		t.Fatal(err)
	}
	got, ok, err := st.GetPolicy(ctx, intentA)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if got.MinAmountOut.Int64() != 7 {
		t.Fatalf("re-registration must overwrite, got min=%s", got.MinAmountOut)
	}
}

func TestSettledSetIsAppendOnlyAndSingleShot(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore(testOwner)

	if settled, _ := st.IsSettled(ctx, intentA); settled {
		t.Fatal("fresh id must not be settled")
	}
	if err := st.MarkSettled(ctx, intentA); err != nil {
		t.Fatal(err)
	}
	if settled, _ := st.IsSettled(ctx, intentA); !settled {
		t.Fatal("marked id must be settled")
	}
	if err := st.MarkSettled(ctx, intentA); !errors.Is(err, domain.ErrAlreadySettled) {
		t.Fatalf("second mark must fail with ErrAlreadySettled, got %v", err)
	}
	if settled, _ := st.IsSettled(ctx, intentB); settled {
		t.Fatal("other ids must be unaffected")
	}
}

func TestAccessStateIsCopiedOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore(testOwner)

	a, err := st.GetAccess(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a.Owner != testOwner {
		t.Fatalf("owner=%s, want seed owner", a.Owner.Hex())
	}
	// Mutating the returned snapshot must not leak into the store.
	a.DelegatedUpdaters[testOwner] = true
	fresh, _ := st.GetAccess(ctx)
	if len(fresh.DelegatedUpdaters) != 0 {
		t.Fatal("snapshot mutation leaked into store")
	}

	a.AuthorizedSolvers[testOwner] = true
	if err := st.PutAccess(ctx, a); err != nil {
		t.Fatal(err)
	}
	stored, _ := st.GetAccess(ctx)
	if !stored.AuthorizedSolvers[testOwner] {
		t.Fatal("PutAccess must persist the new state")
	}
}

func TestEventsFilteredByIntentInOrder(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore(testOwner)

	events := []domain.Event{
		{Type: "ONE", IntentID: intentA},
		{Type: "OTHER", IntentID: intentB},
		{Type: "TWO", IntentID: intentA},
	}
	for _, e := range events {
		if err := st.AppendEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	got, err := st.ListEvents(ctx, intentA)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Type != "ONE" || got[1].Type != "TWO" {
		t.Fatalf("unexpected events: %+v", got)
	}
	for _, e := range got {
		if e.At.IsZero() {
			t.Fatal("append must stamp events")
		}
	}
}

func TestReceiptRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore(testOwner)

	if _, ok, _ := st.GetReceipt(ctx, intentA); ok {
		t.Fatal("no receipt expected")
	}
	r := domain.Receipt{
		ReceiptID:       "stl_test",
		IntentID:        intentA,
		AmountIn:        big.NewInt(10),
		QuotedAmountOut: big.NewInt(9),
	}
	if err := st.PutReceipt(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, ok, err := st.GetReceipt(ctx, intentA)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if got.ReceiptID != "stl_test" {
		t.Fatalf("receipt_id=%s", got.ReceiptID)
	}
}
