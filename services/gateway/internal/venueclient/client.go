// Package venueclient adapts a remote liquidity venue's REST API to the
// settlement.Venue capability interface. Lock preserves the two-phase
// protocol in process: after the remote lock is acknowledged it invokes the
// orchestrator callback synchronously, before returning.
package venueclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"intentlane/pkg/domain"
)

type Callback interface {
	OnVenueCallback(ctx context.Context, caller common.Address, token common.Hash) error
}

type Client struct {
	base     string
	http     *http.Client
	identity common.Address
	callback Callback
}

func New(base string, identity common.Address) *Client {
	return &Client{
		base:     base,
		http:     &http.Client{Timeout: 15 * time.Second},
		identity: identity,
	}
}

// Bind registers the orchestrator callback. The client is unusable for
// Lock until a callback is bound; construction order requires the client
// to exist before the orchestrator does.
func (c *Client) Bind(cb Callback) { c.callback = cb }

func (c *Client) Lock(ctx context.Context, token common.Hash) error {
	if c.callback == nil {
		return fmt.Errorf("venue client has no callback bound")
	}
	if err := c.post(ctx, "/locks", map[string]any{"token": token.Hex()}, nil); err != nil {
		return err
	}
	return c.callback.OnVenueCallback(ctx, c.identity, token)
}

func (c *Client) Exchange(ctx context.Context, params domain.VenueParams, quotedOut *big.Int) (domain.BalanceDelta, error) {
	var resp struct {
		Legs []struct {
			Asset  string `json:"asset"`
			Amount string `json:"amount"`
		} `json:"legs"`
	}
	req := map[string]any{
		"pool_id":           params.PoolID.Hex(),
		"asset0":            params.Asset0.Hex(),
		"asset1":            params.Asset1.Hex(),
		"fee_bps":           params.FeeBps,
		"quoted_amount_out": quotedOut.String(),
	}
	if err := c.post(ctx, "/exchange", req, &resp); err != nil {
		return nil, err
	}
	delta := make(domain.BalanceDelta, 0, len(resp.Legs))
	for _, leg := range resp.Legs {
		amount, ok := new(big.Int).SetString(leg.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("venue returned malformed leg amount %q", leg.Amount)
		}
		delta = append(delta, domain.AssetDelta{
			Asset:  common.HexToAddress(leg.Asset),
			Amount: amount,
		})
	}
	return delta, nil
}

func (c *Client) Pull(ctx context.Context, asset, payer common.Address, amount *big.Int) error {
	return c.post(ctx, "/pulls", map[string]any{
		"asset":  asset.Hex(),
		"payer":  payer.Hex(),
		"amount": amount.String(),
	}, nil)
}

func (c *Client) Release(ctx context.Context, asset, recipient common.Address, amount *big.Int) error {
	return c.post(ctx, "/releases", map[string]any{
		"asset":     asset.Hex(),
		"recipient": recipient.Hex(),
		"amount":    amount.String(),
	}, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("venue %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("venue %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
