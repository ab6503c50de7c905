package session

import (
	"context"
	"sync"
	"time"
)

// Revocations records refresh credential ids revoked at logout.
// Entries only need to outlive the credential they revoke.
type Revocations interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MemoryRevocations is the single-process Revocations used when no Redis is configured.
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations returns an empty in-memory revocation list.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke marks jti revoked for ttl. Expired entries are swept on each call.
func (m *MemoryRevocations) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, k)
		}
	}

	if ttl > 0 {
		m.entries[jti] = now.Add(ttl)
	}
	return nil
}

// IsRevoked reports whether jti is revoked and not yet expired.
func (m *MemoryRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.entries[jti]
	return ok && exp.After(m.now()), nil
}
