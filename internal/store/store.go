// Package store persists the session token pair in a single named slot.
//
// The slot holds only the tokens and their expiries; the account record is
// re-fetched from the identity service on rehydration. The session manager is
// the only writer.
package store

import (
	"context"
	"sync"

	"github.com/pscheid92/sessionkeeper/internal/identity"
)

// Store is the durable single-slot session storage contract.
// Load returns (nil, nil) when the slot is empty.
type Store interface {
	Save(ctx context.Context, tokens *identity.TokenPair) error
	Load(ctx context.Context) (*identity.TokenPair, error)
	Clear(ctx context.Context) error
}

// MemoryStore keeps the slot in process memory. Used in tests and as a
// fallback when no durable backend is configured.
type MemoryStore struct {
	mu     sync.Mutex
	tokens *identity.TokenPair
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, tokens *identity.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *tokens
	s.tokens = &copied
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*identity.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		return nil, nil
	}
	copied := *s.tokens
	return &copied, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = nil
	return nil
}
