package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type slotValue struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (v slotValue) expired(expiry time.Duration, now time.Time) bool {
	return expiry > 0 && now.Sub(v.UpdatedAt) > expiry
}

// MemoryStore keeps slots for the lifetime of the process.
type MemoryStore struct {
	mu     sync.Mutex
	slots  map[string]slotValue
	expiry time.Duration
	now    func() time.Time
}

// NewMemoryStore creates an in-memory store. expiry is how long a value stays
// readable after it was written; 0 means forever.
func NewMemoryStore(expiry time.Duration) *MemoryStore {
	return &MemoryStore{
		slots:  make(map[string]slotValue),
		expiry: expiry,
		now:    time.Now,
	}
}

// Put replaces the value of slot.
func (s *MemoryStore) Put(_ context.Context, slot, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot] = slotValue{Value: value, UpdatedAt: s.now()}
	return nil
}

// Get returns the value of slot.
func (s *MemoryStore) Get(_ context.Context, slot string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.slots[slot]
	if !ok {
		return "", fmt.Errorf("slot %q: %w", slot, ErrEmpty)
	}
	if v.expired(s.expiry, s.now()) {
		delete(s.slots, slot)
		return "", fmt.Errorf("slot %q expired: %w", slot, ErrEmpty)
	}
	return v.Value, nil
}
