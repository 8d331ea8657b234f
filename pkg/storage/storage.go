// Package storage defines the persistence boundary for the settlement
// engine: policies, the append-only settled set, the access registry,
// receipts, and the audit event trail.
package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"intentlane/pkg/domain"
)

type Store interface {
	GetPolicy(ctx context.Context, intentID common.Hash) (domain.Policy, bool, error)
	PutPolicy(ctx context.Context, p domain.Policy) error

	// IsSettled reports whether an intent identifier has entered the
	// settled set. MarkSettled inserts it; inserting twice is an
	// invariant violation and fails with domain.ErrAlreadySettled.
	IsSettled(ctx context.Context, intentID common.Hash) (bool, error)
	MarkSettled(ctx context.Context, intentID common.Hash) error

	GetAccess(ctx context.Context) (domain.AccessState, error)
	PutAccess(ctx context.Context, a domain.AccessState) error

	PutReceipt(ctx context.Context, r domain.Receipt) error
	GetReceipt(ctx context.Context, intentID common.Hash) (domain.Receipt, bool, error)

	AppendEvent(ctx context.Context, e domain.Event) error
	ListEvents(ctx context.Context, intentID common.Hash) ([]domain.Event, error)
}
