// Package access owns the process-wide access registry: a two-phase
// ownership transfer, globally delegated policy updaters, and the set of
// solvers permitted to invoke settlement.
package access

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"intentlane/pkg/domain"
	"intentlane/pkg/storage"
)

type Registry struct {
	store storage.Store
}

func New(store storage.Store) *Registry {
	return &Registry{store: store}
}

func (r *Registry) Owner(ctx context.Context) (common.Address, error) {
	a, err := r.store.GetAccess(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return a.Owner, nil
}

func (r *Registry) RequireOwner(ctx context.Context, caller common.Address) error {
	a, err := r.store.GetAccess(ctx)
	if err != nil {
		return err
	}
	if caller != a.Owner {
		return domain.ErrUnauthorized
	}
	return nil
}

// ProposeOwner stages an ownership transfer. It has no effect until the
// candidate calls AcceptOwnership.
func (r *Registry) ProposeOwner(ctx context.Context, caller, candidate common.Address) error {
	a, err := r.store.GetAccess(ctx)
	if err != nil {
		return err
	}
	if caller != a.Owner {
		return domain.ErrUnauthorized
	}
	a.PendingOwner = candidate
	if err := r.store.PutAccess(ctx, a); err != nil {
		return err
	}
	return r.store.AppendEvent(ctx, domain.Event{
		Type:    domain.EventOwnerProposed,
		Actor:   caller,
		Payload: map[string]any{"pending_owner": candidate.Hex()},
	})
}

func (r *Registry) AcceptOwnership(ctx context.Context, caller common.Address) error {
	a, err := r.store.GetAccess(ctx)
	if err != nil {
		return err
	}
	if a.PendingOwner == (common.Address{}) || caller != a.PendingOwner {
		return domain.ErrUnauthorized
	}
	a.Owner = caller
	a.PendingOwner = common.Address{}
	if err := r.store.PutAccess(ctx, a); err != nil {
		return err
	}
	return r.store.AppendEvent(ctx, domain.Event{
		Type:    domain.EventOwnerAccepted,
		Actor:   caller,
		Payload: map[string]any{"owner": caller.Hex()},
	})
}

func (r *Registry) SetDelegatedUpdater(ctx context.Context, caller, updater common.Address, enabled bool) error {
	return r.setRole(ctx, caller, updater, enabled, domain.EventDelegatedUpdaterSet, func(a *domain.AccessState) map[common.Address]bool {
		return a.DelegatedUpdaters
	})
}

func (r *Registry) SetAuthorizedSolver(ctx context.Context, caller, solver common.Address, enabled bool) error {
	return r.setRole(ctx, caller, solver, enabled, domain.EventAuthorizedSolverSet, func(a *domain.AccessState) map[common.Address]bool {
		return a.AuthorizedSolvers
	})
}

func (r *Registry) setRole(ctx context.Context, caller, subject common.Address, enabled bool, eventType string, pick func(*domain.AccessState) map[common.Address]bool) error {
	if subject == (common.Address{}) {
		return fmt.Errorf("subject address is required")
	}
	a, err := r.store.GetAccess(ctx)
	if err != nil {
		return err
	}
	if caller != a.Owner {
		return domain.ErrUnauthorized
	}
	set := pick(&a)
	if enabled {
		set[subject] = true
	} else {
		delete(set, subject)
	}
	if err := r.store.PutAccess(ctx, a); err != nil {
		return err
	}
	return r.store.AppendEvent(ctx, domain.Event{
		Type:    eventType,
		Actor:   caller,
		Payload: map[string]any{"subject": subject.Hex(), "enabled": enabled},
	})
}

func (r *Registry) IsDelegatedUpdater(ctx context.Context, id common.Address) (bool, error) {
	a, err := r.store.GetAccess(ctx)
	if err != nil {
		return false, err
	}
	return a.DelegatedUpdaters[id], nil
}

// IsAuthorizedSolver reports whether id may invoke settlement. The owner
// is always an authorized solver.
func (r *Registry) IsAuthorizedSolver(ctx context.Context, id common.Address) (bool, error) {
	a, err := r.store.GetAccess(ctx)
	if err != nil {
		return false, err
	}
	return id == a.Owner || a.AuthorizedSolvers[id], nil
}
