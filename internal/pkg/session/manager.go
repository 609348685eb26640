// internal/pkg/session/manager.go
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrMissingJTI = errors.New("token has no jti")

type Manager struct {
	store Store
	now   func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Revoke blocks the token named by r.JTI until r.ExpiresAt. Revoking an
// already expired token is a no-op.
func (m *Manager) Revoke(ctx context.Context, r *Revocation) error {
	if r.JTI == "" {
		return ErrMissingJTI
	}
	if r.RevokedAt.IsZero() {
		r.RevokedAt = m.now()
	}
	if !r.ExpiresAt.After(m.now()) {
		return nil
	}
	return m.store.Put(ctx, r)
}

func (m *Manager) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	r, err := m.store.Get(ctx, jti)
	if err != nil {
		return false, err
	}
	return r != nil, nil
}

// ========== In-memory store ==========

// MemoryStore keeps revocations for a single instance. Used when no redis
// is configured.
type MemoryStore struct {
	mu      sync.Mutex
	revoked map[string]Revocation
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{revoked: make(map[string]Revocation), now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, r *Revocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for jti, old := range s.revoked {
		if !old.ExpiresAt.After(now) {
			delete(s.revoked, jti)
		}
	}
	s.revoked[r.JTI] = *r
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jti string) (*Revocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.revoked[jti]
	if !ok || !r.ExpiresAt.After(s.now()) {
		return nil, nil
	}
	return &r, nil
}
