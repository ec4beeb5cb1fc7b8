package mapbox

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/lru"
	"github.com/couchcryptid/quake-search-service/internal/observability"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache keyed on
// rounded coordinates.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lru.Cache[string, domain.GeocodingResult]
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder. A ttl <= 0
// keeps entries until they are evicted.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, ttl time.Duration, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		cache:   lru.New[string, domain.GeocodingResult](maxEntries, nil),
		ttl:     ttl,
		metrics: metrics,
	}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	// Four decimals is roughly 11 m, well inside a place label's resolution.
	key := fmt.Sprintf("rev:%.4f,%.4f", lat, lon)
	if result, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	result, err := c.inner.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if result.FormattedAddress != "" {
		c.cache.Put(key, result, c.ttl)
	}
	return result, nil
}
