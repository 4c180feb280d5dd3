// Package devlinks keeps the last password reset link per email in memory so a
// developer can open it without a mail relay. Only wired outside production.
package devlinks

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store holds reset links by email for dev-only retrieval.
type Store interface {
	// Put stores link for email until expiresAt, replacing any earlier link.
	Put(ctx context.Context, email, link string, expiresAt time.Time)
	// Get returns the link for email if present and not expired.
	Get(ctx context.Context, email string) (link string, ok bool)
}

type entry struct {
	link      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

func key(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Put stores link for email until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, email, link string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key(email)] = entry{link: link, expiresAt: expiresAt}
}

// Get returns the link for email if present and not expired. Expired entries are removed.
func (s *MemoryStore) Get(ctx context.Context, email string) (string, bool) {
	k := key(email)
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, k)
		s.mu.Unlock()
		return "", false
	}
	return e.link, true
}
