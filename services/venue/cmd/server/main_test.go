package main

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"intentlane/services/venue/internal/pool"
)

var (
	testPoolID = common.HexToHash("0x01")
	testAsset0 = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testAsset1 = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func newVenueServer(t *testing.T) *httptest.Server {
	t.Helper()
	book := pool.NewBook()
	err := book.AddPool(pool.Pool{
		ID:       testPoolID,
		Asset0:   testAsset0,
		Asset1:   testAsset1,
		Reserve0: big.NewInt(1_000_000),
		Reserve1: big.NewInt(1_000_000),
		FeeBps:   0,
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(newRouter(book))
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestLockEndpointSingleUse(t *testing.T) {
	ts := newVenueServer(t)
	token := common.HexToHash("0xaa").Hex()

	resp, body := post(t, ts.URL+"/venue/locks", map[string]any{"token": token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}
	resp, body = post(t, ts.URL+"/venue/locks", map[string]any{"token": token})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("reused token: %d %v", resp.StatusCode, body)
	}
}

func TestExchangeEndpointReturnsSignedLegs(t *testing.T) {
	ts := newVenueServer(t)

	resp, body := post(t, ts.URL+"/venue/exchange", map[string]any{
		"pool_id":           testPoolID.Hex(),
		"asset0":            testAsset0.Hex(),
		"asset1":            testAsset1.Hex(),
		"fee_bps":           0,
		"quoted_amount_out": "100000",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}
	legs, _ := body["legs"].([]any)
	if len(legs) != 2 {
		t.Fatalf("legs=%v", body)
	}
	in, _ := legs[0].(map[string]any)
	out, _ := legs[1].(map[string]any)
	if in["asset"] != testAsset0.Hex() || in["amount"] != "111112" {
		t.Fatalf("input leg=%v", in)
	}
	if out["asset"] != testAsset1.Hex() || out["amount"] != "-100000" {
		t.Fatalf("output leg=%v", out)
	}
}

func TestExchangeEndpointLiquidityConflict(t *testing.T) {
	ts := newVenueServer(t)

	resp, body := post(t, ts.URL+"/venue/exchange", map[string]any{
		"pool_id":           testPoolID.Hex(),
		"asset0":            testAsset0.Hex(),
		"asset1":            testAsset1.Hex(),
		"fee_bps":           0,
		"quoted_amount_out": "1000000",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}
	errObj, _ := body["error"].(map[string]any)
	if errObj["code"] != "INSUFFICIENT_LIQUIDITY" {
		t.Fatalf("error=%v", body)
	}
}

func TestPullReleaseJournaled(t *testing.T) {
	ts := newVenueServer(t)
	payer := common.HexToAddress("0x1111111111111111111111111111111111111111")

	resp, body := post(t, ts.URL+"/venue/pulls", map[string]any{
		"asset":  testAsset0.Hex(),
		"payer":  payer.Hex(),
		"amount": "42",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pull: %d %v", resp.StatusCode, body)
	}
	resp, body = post(t, ts.URL+"/venue/releases", map[string]any{
		"asset":     testAsset1.Hex(),
		"recipient": payer.Hex(),
		"amount":    "40",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("release: %d %v", resp.StatusCode, body)
	}

	httpResp, err := http.Get(ts.URL + "/venue/transfers")
	if err != nil {
		t.Fatal(err)
	}
	defer httpResp.Body.Close()
	var listed map[string]any
	if err := json.NewDecoder(httpResp.Body).Decode(&listed); err != nil {
		t.Fatal(err)
	}
	transfers, _ := listed["transfers"].([]any)
	if len(transfers) != 2 {
		t.Fatalf("transfers=%v", listed)
	}
	first, _ := transfers[0].(map[string]any)
	if first["kind"] != "pull" || first["amount"] != "42" {
		t.Fatalf("first transfer=%v", first)
	}
}

func TestMalformedExchangeRejected(t *testing.T) {
	ts := newVenueServer(t)
	resp, body := post(t, ts.URL+"/venue/exchange", map[string]any{
		"pool_id":           "0x12",
		"asset0":            testAsset0.Hex(),
		"asset1":            testAsset1.Hex(),
		"quoted_amount_out": "1",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}
}
