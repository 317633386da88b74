package mapbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
	"github.com/couchcryptid/storm-escape-service/internal/observability"
)

// CachedGeocoder wraps a ReverseGeocoder with an in-memory LRU cache.
type CachedGeocoder struct {
	inner   domain.ReverseGeocoder
	cache   *lruCache[domain.GeocodingResult]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.ReverseGeocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		cache:   newLRUCache[domain.GeocodingResult](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	// ~1 m precision; nearby fixes share a label.
	key := fmt.Sprintf("%.5f,%.5f", lat, lon)
	if result, ok := c.cache.get(key); ok {
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
		c.cache.put(key, result)
	}
	return result, nil
}

// CachedGateway wraps a DirectionsGateway with an in-memory LRU cache keyed by
// origin, destination and profile. Hazard scoring happens downstream, so a
// cached candidate set is always scored against the current hazards.
type CachedGateway struct {
	inner   domain.DirectionsGateway
	cache   *lruCache[[]domain.RouteCandidate]
	metrics *observability.Metrics
}

// NewCachedGateway creates a cache decorator around a directions gateway.
func NewCachedGateway(inner domain.DirectionsGateway, maxEntries int, metrics *observability.Metrics) *CachedGateway {
	return &CachedGateway{
		inner:   inner,
		cache:   newLRUCache[[]domain.RouteCandidate](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedGateway) Route(ctx context.Context, origin, destination domain.Position, profile domain.Profile) ([]domain.RouteCandidate, error) {
	key := fmt.Sprintf("%s|%.5f,%.5f|%.5f,%.5f", profile, origin.Lat, origin.Lon, destination.Lat, destination.Lon)
	if candidates, ok := c.cache.get(key); ok {
		c.metrics.DirectionsCache.WithLabelValues("hit").Inc()
		return candidates, nil
	}
	c.metrics.DirectionsCache.WithLabelValues("miss").Inc()

	candidates, err := c.inner.Route(ctx, origin, destination, profile)
	if err != nil {
		return nil, err
	}
	if len(candidates) > 0 {
		c.cache.put(key, candidates)
	}
	return candidates, nil
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
