package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/query"
)

// memorySource evaluates predicates over an in-memory slice, mirroring the
// SQL semantics of each clause type.
type memorySource struct {
	mu      sync.Mutex
	events  []domain.SeismicEvent
	err     error
	queries int
	limits  []int
}

func (m *memorySource) Query(_ context.Context, p query.Predicate, limit int) ([]domain.SeismicEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	m.limits = append(m.limits, limit)
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.SeismicEvent
	for _, e := range m.events {
		if matches(p, e) {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memorySource) Count(ctx context.Context, p query.Predicate) (int64, error) {
	rows, err := m.Query(ctx, p, 0)
	return int64(len(rows)), err
}

func matches(p query.Predicate, e domain.SeismicEvent) bool {
	args := p.Args
	for _, c := range p.Clauses {
		a := args[:c.Arity()]
		args = args[c.Arity():]
		if !clauseMatches(c, a, e) {
			return false
		}
	}
	return true
}

func clauseMatches(c query.Clause, a []any, e domain.SeismicEvent) bool {
	switch c := c.(type) {
	case query.Between:
		switch c.Column {
		case query.ColMagnitude:
			return e.Magnitude >= a[0].(float64) && e.Magnitude <= a[1].(float64)
		case query.ColTime:
			return !e.Time.Before(a[0].(time.Time)) && !e.Time.After(a[1].(time.Time))
		}
	case query.ContainsFold:
		needle := strings.Trim(a[0].(string), "%")
		return strings.Contains(strings.ToLower(e.Place), strings.ToLower(needle))
	case query.AtMost:
		return e.Location.Distance != nil && *e.Location.Distance <= a[0].(float64)
	case query.GreaterThan:
		return e.Magnitude > a[0].(float64)
	case query.NightTime:
		h := e.Time.UTC().Hour()
		return e.Magnitude > a[0].(float64) && (h >= query.NightStartHour || h <= query.NightEndHour)
	}
	panic(fmt.Sprintf("unsupported clause %T", c))
}

// memoryCache is a map-backed ResultCache with injectable failures.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
	setErr  error
	ttls    []time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key] = value
	c.ttls = append(c.ttls, ttl)
	return nil
}
