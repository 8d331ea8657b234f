package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"intentlane/pkg/domain"
)

// MemStore is the in-memory Store used by tests and in-process embedding.
type MemStore struct {
	mu       sync.Mutex
	policies map[common.Hash]domain.Policy
	settled  map[common.Hash]bool
	access   domain.AccessState
	receipts map[common.Hash]domain.Receipt
	events   []domain.Event
}

func NewMemStore(owner common.Address) *MemStore {
	return &MemStore{
		policies: map[common.Hash]domain.Policy{},
		settled:  map[common.Hash]bool{},
		access:   domain.NewAccessState(owner),
		receipts: map[common.Hash]domain.Receipt{},
	}
}

func (m *MemStore) GetPolicy(ctx context.Context, intentID common.Hash) (domain.Policy, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[intentID]
	return p, ok, nil
}

func (m *MemStore) PutPolicy(ctx context.Context, p domain.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.IntentID] = p
	return nil
}

func (m *MemStore) IsSettled(ctx context.Context, intentID common.Hash) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settled[intentID], nil
}

func (m *MemStore) MarkSettled(ctx context.Context, intentID common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled[intentID] {
		return domain.ErrAlreadySettled
	}
	m.settled[intentID] = true
	return nil
}

func (m *MemStore) GetAccess(ctx context.Context) (domain.AccessState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access.Clone(), nil
}

func (m *MemStore) PutAccess(ctx context.Context, a domain.AccessState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = a.Clone()
	return nil
}

func (m *MemStore) PutReceipt(ctx context.Context, r domain.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[r.IntentID] = r
	return nil
}

func (m *MemStore) GetReceipt(ctx context.Context, intentID common.Hash) (domain.Receipt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[intentID]
	return r, ok, nil
}

func (m *MemStore) AppendEvent(ctx context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	m.events = append(m.events, e)
	return nil
}

func (m *MemStore) ListEvents(ctx context.Context, intentID common.Hash) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, e := range m.events {
		if e.IntentID == intentID {
			out = append(out, e)
		}
	}
	return out, nil
}
