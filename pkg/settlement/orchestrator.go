// Package settlement validates signed intents and drives the
// lock/execute/reconcile exchange protocol against an external liquidity
// venue, settling each intent exactly once.
package settlement

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"intentlane/pkg/access"
	"intentlane/pkg/constraint"
	"intentlane/pkg/domain"
	"intentlane/pkg/intenthash"
	"intentlane/pkg/signature"
	"intentlane/pkg/storage"
)

type Orchestrator struct {
	store     storage.Store
	access    *access.Registry
	policies  *constraint.Engine
	venue     Venue
	venueID   common.Address
	sigDomain intenthash.Domain
	clock     func() time.Time

	// inFlight is the reentrancy guard: exactly one settlement may be in
	// flight per orchestrator. It is deliberately not re-acquirable by the
	// same call chain, so a venue that re-enters Settle from its lock
	// callback is rejected.
	inFlight atomic.Bool

	mu      sync.Mutex
	current *exchangeContext
}

func NewOrchestrator(store storage.Store, reg *access.Registry, policies *constraint.Engine, venue Venue, venueID common.Address, sigDomain intenthash.Domain) (*Orchestrator, error) {
	if store == nil || reg == nil || policies == nil {
		return nil, errors.New("store, access registry and constraint engine are required")
	}
	if venue == nil {
		return nil, errors.New("venue is required")
	}
	if venueID == (common.Address{}) {
		return nil, errors.New("venue identity is required")
	}
	if sigDomain.ChainID == nil || sigDomain.ChainID.Sign() <= 0 {
		return nil, errors.New("signature domain chain id is required")
	}
	return &Orchestrator{
		store:     store,
		access:    reg,
		policies:  policies,
		venue:     venue,
		venueID:   venueID,
		sigDomain: sigDomain,
		clock:     time.Now,
	}, nil
}

// WithClock overrides the orchestrator clock for deterministic tests.
func (o *Orchestrator) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	o.clock = clock
}

// SignatureDomain exposes the typed-data domain signatures must target.
func (o *Orchestrator) SignatureDomain() intenthash.Domain {
	return o.sigDomain
}

// Settle authorizes, validates and executes one intent's exchange. Every
// check is fail-closed: the first violation aborts the call with its
// specific error, nothing is retried, and the settled set is only written
// after the venue protocol has completed.
func (o *Orchestrator) Settle(ctx context.Context, caller common.Address, intent domain.Intent, params domain.VenueParams, quotedOut *big.Int) (domain.Receipt, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return domain.Receipt{}, domain.ErrReentrantCall
	}
	defer o.inFlight.Store(false)

	ok, err := o.access.IsAuthorizedSolver(ctx, caller)
	if err != nil {
		return domain.Receipt{}, err
	}
	if !ok {
		return domain.Receipt{}, domain.ErrUnauthorizedSolver
	}

	settled, err := o.store.IsSettled(ctx, intent.ID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if settled {
		return domain.Receipt{}, domain.ErrAlreadySettled
	}

	if err := intent.Validate(); err != nil {
		return domain.Receipt{}, err
	}
	if quotedOut == nil || quotedOut.Sign() <= 0 {
		return domain.Receipt{}, fmt.Errorf("quoted_amount_out must be positive")
	}

	// Native-asset flows have no funding path from the payer in this
	// design; they require a pre-funding mechanism that is out of scope.
	if intent.TokenIn == (common.Address{}) || intent.TokenOut == (common.Address{}) {
		return domain.Receipt{}, domain.ErrUnsupportedAssetFlow
	}

	now := o.clock()
	if intent.Deadline < uint64(now.Unix()) {
		return domain.Receipt{}, domain.ErrIntentExpired
	}
	if quotedOut.Cmp(intent.MinAmountOut) < 0 {
		return domain.Receipt{}, domain.ErrQuotedAmountTooLow
	}

	digest := intenthash.Digest(o.sigDomain, intent)
	if err := signature.Verify(digest, intent.Signature, intent.User); err != nil {
		return domain.Receipt{}, domain.ErrInvalidSignature
	}

	if !params.MatchesPair(intent.TokenIn, intent.TokenOut) {
		return domain.Receipt{}, domain.ErrVenueMismatch
	}

	dec, err := o.policies.Evaluate(ctx, intent.ID, quotedOut)
	if err != nil {
		return domain.Receipt{}, err
	}
	if !dec.Allowed {
		return domain.Receipt{}, &domain.PolicyRejectedError{Reason: dec.Reason}
	}

	exc := &exchangeContext{
		intent:    intent,
		params:    params,
		quotedOut: quotedOut,
		initiator: caller,
		token:     newLockToken(),
	}
	o.setCurrent(exc)
	defer o.setCurrent(nil)

	lockErr := o.venue.Lock(ctx, exc.token)
	if exc.err != nil {
		return domain.Receipt{}, exc.err
	}
	if lockErr != nil {
		return domain.Receipt{}, fmt.Errorf("venue lock: %w", lockErr)
	}
	if !exc.executed {
		return domain.Receipt{}, domain.ErrVenueCallbackMissing
	}

	if err := o.store.MarkSettled(ctx, intent.ID); err != nil {
		return domain.Receipt{}, err
	}
	receipt := domain.Receipt{
		ReceiptID:       "stl_" + uuid.NewString(),
		IntentID:        intent.ID,
		User:            intent.User,
		Solver:          caller,
		TokenIn:         intent.TokenIn,
		TokenOut:        intent.TokenOut,
		AmountIn:        new(big.Int).Set(intent.AmountIn),
		QuotedAmountOut: new(big.Int).Set(quotedOut),
		SettledAt:       now.UTC(),
	}
	if err := o.store.PutReceipt(ctx, receipt); err != nil {
		return domain.Receipt{}, err
	}
	if err := o.store.AppendEvent(ctx, domain.Event{
		Type:     domain.EventIntentSettled,
		IntentID: intent.ID,
		Actor:    caller,
		Payload: map[string]any{
			"receipt_id":        receipt.ReceiptID,
			"quoted_amount_out": quotedOut.String(),
		},
	}); err != nil {
		return domain.Receipt{}, err
	}
	return receipt, nil
}

// OnVenueCallback is the second phase of the exchange protocol, invoked by
// the venue from inside Lock. Only the registered venue may call it, and
// only with the single in-flight token, exactly once.
func (o *Orchestrator) OnVenueCallback(ctx context.Context, caller common.Address, token common.Hash) error {
	if caller != o.venueID {
		return domain.ErrUnauthorizedVenue
	}
	exc := o.currentContext()
	if exc == nil || exc.token != token || exc.executed {
		return domain.ErrUnauthorizedVenue
	}
	exc.executed = true

	delta, err := o.venue.Exchange(ctx, exc.params, exc.quotedOut)
	if err != nil {
		exc.err = fmt.Errorf("venue exchange: %w", err)
		return exc.err
	}
	if err := o.reconcile(ctx, exc.intent.User, delta); err != nil {
		exc.err = err
		return err
	}
	return nil
}

// reconcile applies the venue's signed balance delta leg by leg: positive
// amounts are pulled from the payer into the venue, negative amounts are
// released by the venue to the payer. Any transfer failure aborts the call.
func (o *Orchestrator) reconcile(ctx context.Context, payer common.Address, delta domain.BalanceDelta) error {
	for _, leg := range delta {
		if leg.Amount == nil || leg.Amount.Sign() == 0 {
			continue
		}
		if leg.Amount.Sign() > 0 {
			if leg.Asset == (common.Address{}) {
				return domain.ErrUnsupportedAssetFlow
			}
			if err := o.venue.Pull(ctx, leg.Asset, payer, leg.Amount); err != nil {
				return fmt.Errorf("pull %s: %w", leg.Asset.Hex(), err)
			}
			continue
		}
		owed := new(big.Int).Neg(leg.Amount)
		if err := o.venue.Release(ctx, leg.Asset, payer, owed); err != nil {
			return fmt.Errorf("release %s: %w", leg.Asset.Hex(), err)
		}
	}
	return nil
}

// Admin surface, mirroring the access registry.

func (o *Orchestrator) ProposeOwner(ctx context.Context, caller, candidate common.Address) error {
	return o.access.ProposeOwner(ctx, caller, candidate)
}

func (o *Orchestrator) AcceptOwnership(ctx context.Context, caller common.Address) error {
	return o.access.AcceptOwnership(ctx, caller)
}

func (o *Orchestrator) SetAuthorizedSolver(ctx context.Context, caller, solver common.Address, enabled bool) error {
	return o.access.SetAuthorizedSolver(ctx, caller, solver, enabled)
}

func (o *Orchestrator) setCurrent(exc *exchangeContext) {
	o.mu.Lock()
	o.current = exc
	o.mu.Unlock()
}

func (o *Orchestrator) currentContext() *exchangeContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

func newLockToken() common.Hash {
	var token common.Hash
	_, _ = rand.Read(token[:])
	return token
}
