package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BpsDenominator is the basis-point scale for slippage bounds.
const BpsDenominator = 10000

type ReasonCode string

const (
	ReasonOK               ReasonCode = "OK"
	ReasonPolicyMissing    ReasonCode = "POLICY_MISSING"
	ReasonPolicyExpired    ReasonCode = "POLICY_EXPIRED"
	ReasonSlippageExceeded ReasonCode = "SLIPPAGE_EXCEEDED"
)

// Policy holds the enforcement parameters registered for one intent
// identifier. Policies are never deleted; re-registration overwrites.
type Policy struct {
	IntentID           common.Hash
	MinAmountOut       *big.Int
	ReferenceAmountOut *big.Int
	MaxSlippageBps     uint32
	Deadline           uint64
	DelegatedUpdater   common.Address
}

func (p Policy) ValidateBounds() error {
	if p.MaxSlippageBps > BpsDenominator {
		return ErrInvalidBounds
	}
	if p.MinAmountOut == nil || p.MinAmountOut.Sign() < 0 {
		return fmt.Errorf("%w: min_amount_out must be a non-negative amount", ErrInvalidBounds)
	}
	if p.ReferenceAmountOut == nil || p.ReferenceAmountOut.Sign() < 0 {
		return fmt.Errorf("%w: reference_amount_out must be a non-negative amount", ErrInvalidBounds)
	}
	return nil
}

// SlippageBound computes reference*(10000-bps)/10000 with floor division.
// Truncation only ever lowers the bound, so rounding never under-protects.
func (p Policy) SlippageBound() *big.Int {
	bound := new(big.Int).Mul(p.ReferenceAmountOut, big.NewInt(BpsDenominator-int64(p.MaxSlippageBps)))
	return bound.Div(bound, big.NewInt(BpsDenominator))
}

// EffectiveMinOut is the floor actually enforced: the larger of the
// absolute minimum and the slippage bound.
func (p Policy) EffectiveMinOut() *big.Int {
	bound := p.SlippageBound()
	if p.MinAmountOut.Cmp(bound) > 0 {
		return new(big.Int).Set(p.MinAmountOut)
	}
	return bound
}

func (p Policy) ExpiredAt(now time.Time) bool {
	return p.Deadline < uint64(now.Unix())
}

// Decision is the outcome of evaluating a quoted output against a policy.
type Decision struct {
	Allowed         bool
	Reason          ReasonCode
	EffectiveMinOut *big.Int
}

// Intent is a user-signed request to exchange TokenIn for TokenOut under
// stated bounds. It is ephemeral input: nothing beyond the settled flag
// and the receipt survives a settlement.
type Intent struct {
	ID           common.Hash
	User         common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Deadline     uint64
	Signature    []byte
}

func (in Intent) Validate() error {
	if in.ID == (common.Hash{}) {
		return fmt.Errorf("intent id is required")
	}
	if in.User == (common.Address{}) {
		return fmt.Errorf("intent user is required")
	}
	if in.AmountIn == nil || in.AmountIn.Sign() <= 0 {
		return fmt.Errorf("amount_in must be positive")
	}
	if in.MinAmountOut == nil || in.MinAmountOut.Sign() < 0 {
		return fmt.Errorf("min_amount_out must be non-negative")
	}
	if in.Deadline == 0 {
		return fmt.Errorf("deadline is required")
	}
	return nil
}

// VenueParams references the venue-side pool an exchange must route
// through. The pair is unordered relative to the intent's token legs.
type VenueParams struct {
	PoolID common.Hash
	Asset0 common.Address
	Asset1 common.Address
	FeeBps uint32
}

func (v VenueParams) MatchesPair(a, b common.Address) bool {
	return (v.Asset0 == a && v.Asset1 == b) || (v.Asset0 == b && v.Asset1 == a)
}

// AssetDelta is one leg of a venue balance delta. Positive amounts mean
// the payer owes the venue; negative amounts mean the venue owes the payer.
type AssetDelta struct {
	Asset  common.Address
	Amount *big.Int
}

type BalanceDelta []AssetDelta

// Receipt records one completed settlement.
type Receipt struct {
	ReceiptID       string
	IntentID        common.Hash
	User            common.Address
	Solver          common.Address
	TokenIn         common.Address
	TokenOut        common.Address
	AmountIn        *big.Int
	QuotedAmountOut *big.Int
	SettledAt       time.Time
}

// AccessState is the process-wide access-control registry: current owner,
// a pending owner from a two-phase transfer, and the global role grants.
type AccessState struct {
	Owner             common.Address
	PendingOwner      common.Address
	DelegatedUpdaters map[common.Address]bool
	AuthorizedSolvers map[common.Address]bool
}

func NewAccessState(owner common.Address) AccessState {
	return AccessState{
		Owner:             owner,
		DelegatedUpdaters: map[common.Address]bool{},
		AuthorizedSolvers: map[common.Address]bool{},
	}
}

func (a AccessState) Clone() AccessState {
	out := AccessState{
		Owner:             a.Owner,
		PendingOwner:      a.PendingOwner,
		DelegatedUpdaters: make(map[common.Address]bool, len(a.DelegatedUpdaters)),
		AuthorizedSolvers: make(map[common.Address]bool, len(a.AuthorizedSolvers)),
	}
	for k, v := range a.DelegatedUpdaters {
		out.DelegatedUpdaters[k] = v
	}
	for k, v := range a.AuthorizedSolvers {
		out.AuthorizedSolvers[k] = v
	}
	return out
}

const (
	EventPolicyRegistered    = "POLICY_REGISTERED"
	EventPolicyUpdated       = "POLICY_UPDATED"
	EventPolicyEvaluated     = "POLICY_EVALUATED"
	EventIntentSettled       = "INTENT_SETTLED"
	EventOwnerProposed       = "OWNER_PROPOSED"
	EventOwnerAccepted       = "OWNER_ACCEPTED"
	EventDelegatedUpdaterSet = "DELEGATED_UPDATER_SET"
	EventAuthorizedSolverSet = "AUTHORIZED_SOLVER_SET"
)

// Event is one audit-trail entry appended by engine operations.
type Event struct {
	Type     string
	IntentID common.Hash
	Actor    common.Address
	Payload  map[string]any
	At       time.Time
}
