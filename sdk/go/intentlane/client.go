// Package intentlane is the Go client for the settlement gateway API.
package intentlane

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const APIVersion = "v1"

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Error is the gateway's error envelope, surfaced verbatim.
type Error struct {
	StatusCode int
	ErrorCode  string
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("intentlane sdk error: status=%d code=%s message=%s", e.StatusCode, e.ErrorCode, e.Message)
}

// Intent mirrors the gateway's wire shape: hex identifiers, decimal amounts.
type Intent struct {
	ID           string `json:"id"`
	User         string `json:"user"`
	TokenIn      string `json:"token_in"`
	TokenOut     string `json:"token_out"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out"`
	Deadline     uint64 `json:"deadline"`
	Signature    string `json:"signature"`
}

type VenueParams struct {
	PoolID string `json:"pool_id"`
	Asset0 string `json:"asset0"`
	Asset1 string `json:"asset1"`
	FeeBps uint32 `json:"fee_bps"`
}

type Receipt struct {
	ReceiptID       string         `json:"receipt_id"`
	IntentID        string         `json:"intent_id"`
	User            string         `json:"user"`
	Solver          string         `json:"solver"`
	TokenIn         string         `json:"token_in"`
	TokenOut        string         `json:"token_out"`
	AmountIn        string         `json:"amount_in"`
	QuotedAmountOut string         `json:"quoted_amount_out"`
	Raw             map[string]any `json:"-"`
}

type IntentStatus struct {
	IntentID string
	Settled  bool
	Receipt  *Receipt
	Raw      map[string]any
}

type Evaluation struct {
	IntentID        string
	Allowed         bool
	Reason          string
	EffectiveMinOut *big.Int
	Raw             map[string]any
}

type PolicyParams struct {
	IntentID           string `json:"intent_id"`
	MinAmountOut       string `json:"min_amount_out"`
	ReferenceAmountOut string `json:"reference_amount_out"`
	MaxSlippageBps     uint32 `json:"max_slippage_bps"`
	Deadline           uint64 `json:"deadline"`
	DelegatedUpdater   string `json:"delegated_updater"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}
	if c.retry.BaseDelay <= 0 {
		c.retry.BaseDelay = 200 * time.Millisecond
	}
	if c.retry.MaxDelay <= 0 {
		c.retry.MaxDelay = 5 * time.Second
	}
	return c
}

// Settle submits one signed intent for settlement. Settlement is not
// idempotent at the transport level, so it is never retried; a replayed
// intent fails with ALREADY_SETTLED.
func (c *Client) Settle(ctx context.Context, solver string, intent Intent, params VenueParams, quotedAmountOut string) (*Receipt, error) {
	body := map[string]any{
		"solver":            solver,
		"intent":            intent,
		"venue_params":      params,
		"quoted_amount_out": quotedAmountOut,
	}
	payload, err := c.do(ctx, http.MethodPost, "/settle/intents:settle", body, false)
	if err != nil {
		return nil, err
	}
	raw, _ := payload["receipt"].(map[string]any)
	if raw == nil {
		return nil, fmt.Errorf("gateway returned no receipt")
	}
	return parseReceipt(raw), nil
}

func (c *Client) IntentStatus(ctx context.Context, intentID string) (*IntentStatus, error) {
	payload, err := c.do(ctx, http.MethodGet, "/settle/intents/"+url.PathEscape(intentID), nil, true)
	if err != nil {
		return nil, err
	}
	st := &IntentStatus{Raw: payload}
	st.IntentID, _ = payload["intent_id"].(string)
	st.Settled, _ = payload["settled"].(bool)
	if raw, ok := payload["receipt"].(map[string]any); ok {
		st.Receipt = parseReceipt(raw)
	}
	return st, nil
}

func (c *Client) IntentEvents(ctx context.Context, intentID string) ([]map[string]any, error) {
	payload, err := c.do(ctx, http.MethodGet, "/settle/intents/"+url.PathEscape(intentID)+"/events", nil, true)
	if err != nil {
		return nil, err
	}
	rawEvents, _ := payload["events"].([]any)
	out := make([]map[string]any, 0, len(rawEvents))
	for _, raw := range rawEvents {
		if e, ok := raw.(map[string]any); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *Client) CreatePolicy(ctx context.Context, caller string, policy PolicyParams) error {
	body := map[string]any{
		"caller":               caller,
		"intent_id":            policy.IntentID,
		"min_amount_out":       policy.MinAmountOut,
		"reference_amount_out": policy.ReferenceAmountOut,
		"max_slippage_bps":     policy.MaxSlippageBps,
		"deadline":             policy.Deadline,
		"delegated_updater":    policy.DelegatedUpdater,
	}
	_, err := c.do(ctx, http.MethodPost, "/settle/policies", body, false)
	return err
}

func (c *Client) UpdateBounds(ctx context.Context, caller, intentID, minAmountOut, referenceAmountOut string, maxSlippageBps uint32, deadline uint64) error {
	body := map[string]any{
		"caller":               caller,
		"min_amount_out":       minAmountOut,
		"reference_amount_out": referenceAmountOut,
		"max_slippage_bps":     maxSlippageBps,
		"deadline":             deadline,
	}
	_, err := c.do(ctx, http.MethodPost, "/settle/policies/"+url.PathEscape(intentID)+"/bounds", body, false)
	return err
}

func (c *Client) Evaluate(ctx context.Context, intentID, quotedAmountOut string) (*Evaluation, error) {
	v := url.Values{}
	v.Set("quoted_amount_out", quotedAmountOut)
	path := "/settle/policies/" + url.PathEscape(intentID) + "/evaluate?" + v.Encode()
	payload, err := c.do(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	ev := &Evaluation{Raw: payload}
	ev.IntentID, _ = payload["intent_id"].(string)
	ev.Allowed, _ = payload["allowed"].(bool)
	ev.Reason, _ = payload["reason"].(string)
	if s, ok := payload["effective_min_out"].(string); ok {
		if n, ok := new(big.Int).SetString(s, 10); ok {
			ev.EffectiveMinOut = n
		}
	}
	return ev, nil
}

func (c *Client) ProposeOwner(ctx context.Context, caller, candidate string) error {
	_, err := c.do(ctx, http.MethodPost, "/settle/admin/owner:propose", map[string]any{
		"caller":    caller,
		"candidate": candidate,
	}, false)
	return err
}

func (c *Client) AcceptOwnership(ctx context.Context, caller string) error {
	_, err := c.do(ctx, http.MethodPost, "/settle/admin/owner:accept", map[string]any{
		"caller": caller,
	}, false)
	return err
}

func (c *Client) SetDelegatedUpdater(ctx context.Context, caller, updater string, enabled bool) error {
	_, err := c.do(ctx, http.MethodPost, "/settle/admin/updaters", map[string]any{
		"caller":  caller,
		"updater": updater,
		"enabled": enabled,
	}, false)
	return err
}

func (c *Client) SetAuthorizedSolver(ctx context.Context, caller, solver string, enabled bool) error {
	_, err := c.do(ctx, http.MethodPost, "/settle/admin/solvers", map[string]any{
		"caller":  caller,
		"solver":  solver,
		"enabled": enabled,
	}, false)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any, retryable bool) (map[string]any, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}
	attempts := 1
	if retryable {
		attempts = c.retry.MaxAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "intentlane-go-sdk/0.1.0 (api:"+APIVersion+")")
		if len(bodyBytes) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < attempts {
				sleepWithBackoff(c.retry, attempt, "")
				continue
			}
			return nil, err
		}
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var obj map[string]any
			if len(respBody) == 0 {
				return map[string]any{}, nil
			}
			if err := json.Unmarshal(respBody, &obj); err != nil {
				return nil, err
			}
			return obj, nil
		}
		if shouldRetryStatus(resp.StatusCode) && attempt < attempts {
			sleepWithBackoff(c.retry, attempt, resp.Header.Get("Retry-After"))
			continue
		}
		return nil, parseSDKError(resp.StatusCode, respBody)
	}
	return nil, fmt.Errorf("unreachable")
}

func shouldRetryStatus(status int) bool {
	return status == 429 || status == 502 || status == 503 || status == 504
}

func sleepWithBackoff(cfg RetryConfig, attempt int, retryAfter string) {
	if strings.TrimSpace(retryAfter) != "" {
		if sec, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil {
			d := time.Duration(sec) * time.Second
			if d > cfg.MaxDelay {
				d = cfg.MaxDelay
			}
			time.Sleep(d)
			return
		}
	}
	max := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if max > float64(cfg.MaxDelay) {
		max = float64(cfg.MaxDelay)
	}
	n, _ := rand.Int(rand.Reader, positiveBig(int64(max)))
	time.Sleep(time.Duration(n.Int64()))
}

func parseSDKError(status int, body []byte) error {
	out := &Error{StatusCode: status}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		out.Message = strings.TrimSpace(string(body))
		if out.Message == "" {
			out.Message = http.StatusText(status)
		}
		return out
	}
	out.RequestID, _ = obj["request_id"].(string)
	if inner, ok := obj["error"].(map[string]any); ok {
		obj = inner
	}
	out.ErrorCode, _ = obj["code"].(string)
	out.Message, _ = obj["message"].(string)
	if out.Message == "" {
		out.Message = http.StatusText(status)
	}
	return out
}

func parseReceipt(raw map[string]any) *Receipt {
	r := &Receipt{Raw: raw}
	r.ReceiptID, _ = raw["receipt_id"].(string)
	r.IntentID, _ = raw["intent_id"].(string)
	r.User, _ = raw["user"].(string)
	r.Solver, _ = raw["solver"].(string)
	r.TokenIn, _ = raw["token_in"].(string)
	r.TokenOut, _ = raw["token_out"].(string)
	r.AmountIn, _ = raw["amount_in"].(string)
	r.QuotedAmountOut, _ = raw["quoted_amount_out"].(string)
	return r
}

func positiveBig(v int64) *big.Int {
	if v <= 1 {
		v = 1
	}
	return big.NewInt(v)
}
