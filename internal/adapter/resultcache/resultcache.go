// Package resultcache provides the result cache backends used by the search
// service: an in-process LRU with expiry and a Badger store that survives
// restarts.
package resultcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/quake-search-service/internal/lru"
)

// Memory is an in-process result cache. It never fails.
type Memory struct {
	entries *lru.Cache[string, []byte]
}

// NewMemory creates a cache holding at most maxEntries results.
func NewMemory(maxEntries int, clock clockwork.Clock) *Memory {
	return &Memory{entries: lru.New[string, []byte](maxEntries, clock)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.entries.Get(key)
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.entries.Put(key, value, ttl)
	return nil
}

// Settings selects and sizes a backend.
type Settings struct {
	Backend string // "memory", "badger" or "none"
	Size    int
	Dir     string // badger directory; empty keeps badger in memory
}

// Backend is the interface every cache backend satisfies. Close releases any
// resources held by the backend.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Open builds the configured backend. It returns nil, nil for "none".
func Open(s Settings, logger *slog.Logger) (Backend, error) {
	switch s.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(s.Size, nil), nil
	case "badger":
		b, err := OpenBadger(s.Dir, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", s.Backend)
	}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
