package settlement

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"intentlane/pkg/domain"
)

// Venue is the external liquidity engine capability the orchestrator drives.
// The concrete venue is injected, never hard-coded.
//
// Lock must synchronously invoke the orchestrator's OnVenueCallback with the
// same token before it returns; returning without the callback is a protocol
// breach.
type Venue interface {
	Lock(ctx context.Context, token common.Hash) error
	Exchange(ctx context.Context, params domain.VenueParams, quotedOut *big.Int) (domain.BalanceDelta, error)
	Pull(ctx context.Context, asset, payer common.Address, amount *big.Int) error
	Release(ctx context.Context, asset, recipient common.Address, amount *big.Int) error
}

// exchangeContext correlates the venue callback with the Settle call that
// initiated it. It never outlives one settlement call.
type exchangeContext struct {
	intent    domain.Intent
	params    domain.VenueParams
	quotedOut *big.Int
	initiator common.Address
	token     common.Hash
	executed  bool
	err       error
}
