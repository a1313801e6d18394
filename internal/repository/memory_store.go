package repository

import (
	"context"
	"sync"
	"time"

	"avia-bot/internal/domain"
)

// MemoryStore keeps dialog state in process memory. It is the default for
// single-instance polling deployments.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]memoryEntry
}

type memoryEntry struct {
	state     domain.DialogState
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore whose entries expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttlOrDefault(ttl),
		now:     time.Now,
		entries: make(map[int64]memoryEntry),
	}
}

func (m *MemoryStore) GetState(_ context.Context, userID int64) (domain.DialogState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[userID]
	if !ok {
		return domain.DialogState{}, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, userID)
		return domain.DialogState{}, false, nil
	}
	return e.state, true, nil
}

func (m *MemoryStore) SaveState(_ context.Context, s domain.DialogState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[s.UserID] = memoryEntry{state: s, expiresAt: m.now().Add(m.ttl)}
	m.sweepLocked()
	return nil
}

func (m *MemoryStore) DeleteState(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, userID)
	return nil
}

// sweepLocked drops expired entries so idle users do not accumulate.
func (m *MemoryStore) sweepLocked() {
	now := m.now()
	for id, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, id)
		}
	}
}
