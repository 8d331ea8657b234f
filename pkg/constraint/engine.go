// Package constraint owns the per-intent execution policies and the single
// decision function that settlement consults. It never moves value.
package constraint

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"intentlane/pkg/access"
	"intentlane/pkg/domain"
	"intentlane/pkg/storage"
)

type Engine struct {
	store  storage.Store
	access *access.Registry
	clock  func() time.Time
}

func NewEngine(store storage.Store, reg *access.Registry) *Engine {
	return &Engine{store: store, access: reg, clock: time.Now}
}

// WithClock overrides the engine clock for deterministic tests.
func (e *Engine) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	e.clock = clock
}

// CreatePolicy registers (or overwrites) the policy for an intent
// identifier. Callable by the owner or a globally delegated updater;
// avoiding unsafe overwrite of a live policy is the caller's
// responsibility.
func (e *Engine) CreatePolicy(ctx context.Context, caller common.Address, p domain.Policy) error {
	if err := p.ValidateBounds(); err != nil {
		return err
	}
	if err := e.requireOwnerOrGlobalUpdater(ctx, caller); err != nil {
		return err
	}
	if err := e.store.PutPolicy(ctx, p); err != nil {
		return err
	}
	return e.store.AppendEvent(ctx, domain.Event{
		Type:     domain.EventPolicyRegistered,
		IntentID: p.IntentID,
		Actor:    caller,
		Payload: map[string]any{
			"min_amount_out":       p.MinAmountOut.String(),
			"reference_amount_out": p.ReferenceAmountOut.String(),
			"max_slippage_bps":     p.MaxSlippageBps,
			"deadline":             p.Deadline,
			"delegated_updater":    p.DelegatedUpdater.Hex(),
		},
	})
}

// UpdateBounds re-parameterizes an existing policy. The policy's own
// delegated updater may loosen as well as tighten bounds after creation.
func (e *Engine) UpdateBounds(ctx context.Context, caller common.Address, intentID common.Hash, minOut, refOut *big.Int, maxSlippageBps uint32, deadline uint64) error {
	p, ok, err := e.store.GetPolicy(ctx, intentID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrPolicyNotFound
	}
	owner, err := e.access.Owner(ctx)
	if err != nil {
		return err
	}
	if caller != owner && caller != p.DelegatedUpdater {
		return domain.ErrUnauthorized
	}
	next := p
	next.MinAmountOut = minOut
	next.ReferenceAmountOut = refOut
	next.MaxSlippageBps = maxSlippageBps
	next.Deadline = deadline
	if err := next.ValidateBounds(); err != nil {
		return err
	}
	if err := e.store.PutPolicy(ctx, next); err != nil {
		return err
	}
	return e.store.AppendEvent(ctx, domain.Event{
		Type:     domain.EventPolicyUpdated,
		IntentID: intentID,
		Actor:    caller,
		Payload: map[string]any{
			"min_amount_out":       next.MinAmountOut.String(),
			"reference_amount_out": next.ReferenceAmountOut.String(),
			"max_slippage_bps":     next.MaxSlippageBps,
			"deadline":             next.Deadline,
		},
	})
}

// SetDelegatedUpdater grants or revokes the global updater role,
// independent of any single policy's delegated updater.
func (e *Engine) SetDelegatedUpdater(ctx context.Context, caller, updater common.Address, enabled bool) error {
	return e.access.SetDelegatedUpdater(ctx, caller, updater, enabled)
}

// Evaluate decides whether a quoted output satisfies the policy registered
// for intentID. It is pure given the stored policy and the clock; the only
// side effect is the audit event.
func (e *Engine) Evaluate(ctx context.Context, intentID common.Hash, quotedOut *big.Int) (domain.Decision, error) {
	dec, err := e.decide(ctx, intentID, quotedOut)
	if err != nil {
		return domain.Decision{}, err
	}
	payload := map[string]any{
		"quoted_amount_out": quotedOut.String(),
		"allowed":           dec.Allowed,
		"reason":            string(dec.Reason),
	}
	if dec.EffectiveMinOut != nil {
		payload["effective_min_out"] = dec.EffectiveMinOut.String()
	}
	if err := e.store.AppendEvent(ctx, domain.Event{
		Type:     domain.EventPolicyEvaluated,
		IntentID: intentID,
		Payload:  payload,
	}); err != nil {
		return domain.Decision{}, err
	}
	return dec, nil
}

func (e *Engine) decide(ctx context.Context, intentID common.Hash, quotedOut *big.Int) (domain.Decision, error) {
	p, ok, err := e.store.GetPolicy(ctx, intentID)
	if err != nil {
		return domain.Decision{}, err
	}
	if !ok {
		return domain.Decision{Reason: domain.ReasonPolicyMissing}, nil
	}
	if p.ExpiredAt(e.clock()) {
		return domain.Decision{Reason: domain.ReasonPolicyExpired}, nil
	}
	effectiveMin := p.EffectiveMinOut()
	if quotedOut == nil || quotedOut.Cmp(effectiveMin) < 0 {
		return domain.Decision{Reason: domain.ReasonSlippageExceeded, EffectiveMinOut: effectiveMin}, nil
	}
	return domain.Decision{Allowed: true, Reason: domain.ReasonOK, EffectiveMinOut: effectiveMin}, nil
}

func (e *Engine) requireOwnerOrGlobalUpdater(ctx context.Context, caller common.Address) error {
	owner, err := e.access.Owner(ctx)
	if err != nil {
		return err
	}
	if caller == owner {
		return nil
	}
	ok, err := e.access.IsDelegatedUpdater(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}
