package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stellarlinkco/cordkit/internal/config"
)

// Store keeps REST responses until they expire.
type Store interface {
	Get(key string) ([]byte, bool, error)
	// Set stores value for ttl. A non-positive ttl stores nothing.
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	// Purge drops expired entries and reports how many were removed.
	Purge() (int, error)
	Close() error
}

// Settings decides how long each route's responses are kept. Routes are
// keyed by "<METHOD> <route template>", e.g. "GET /gateway/bot".
type Settings struct {
	DefaultTTL time.Duration
	Routes     map[string]time.Duration
}

func (s Settings) TTL(route string) time.Duration {
	if ttl, ok := s.Routes[route]; ok {
		return ttl
	}
	return s.DefaultTTL
}

// ParseSettings converts the duration strings of cfg.
func ParseSettings(cfg config.CacheConfig) (Settings, error) {
	s := Settings{Routes: make(map[string]time.Duration, len(cfg.Routes))}
	if strings.TrimSpace(cfg.DefaultTTL) != "" {
		ttl, err := time.ParseDuration(cfg.DefaultTTL)
		if err != nil {
			return Settings{}, fmt.Errorf("parse cache default ttl: %w", err)
		}
		s.DefaultTTL = ttl
	}
	for route, raw := range cfg.Routes {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("parse cache ttl for %q: %w", route, err)
		}
		s.Routes[route] = ttl
	}
	return s, nil
}

// Open builds the store selected by cfg.
func Open(cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "", config.CacheBackendMemory:
		return NewMemoryStore(), nil
	case config.CacheBackendSQLite:
		return NewSQLiteStore(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *MemoryStore) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: stored, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) Purge() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) Close() error { return nil }
