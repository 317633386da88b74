package mapbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
	"github.com/couchcryptid/storm-escape-service/internal/observability"
)

// --- mocks for cache tests ---

type countingGeocoder struct {
	calls  int
	result domain.GeocodingResult
}

func (m *countingGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	m.calls++
	return m.result, nil
}

type countingGateway struct {
	calls      int
	candidates []domain.RouteCandidate
	err        error
}

func (m *countingGateway) Route(context.Context, domain.Position, domain.Position, domain.Profile) ([]domain.RouteCandidate, error) {
	m.calls++
	return m.candidates, m.err
}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_CacheHit(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodingResult{FormattedAddress: "Rua Augusta, São Paulo"}}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	r1, err := cached.ReverseGeocode(context.Background(), -23.5485, -46.6425)
	require.NoError(t, err)
	r2, err := cached.ReverseGeocode(context.Background(), -23.5485, -46.6425)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
}

func TestCachedGeocoder_EmptyResultNotCached(t *testing.T) {
	inner := &countingGeocoder{}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.ReverseGeocode(context.Background(), 1, 1)
	_, _ = cached.ReverseGeocode(context.Background(), 1, 1)

	assert.Equal(t, 2, inner.calls)
}

// --- CachedGateway tests ---

func TestCachedGateway_CacheHit(t *testing.T) {
	inner := &countingGateway{candidates: []domain.RouteCandidate{{Rank: 0, Geometry: []domain.Position{origin, destination}}}}
	cached := NewCachedGateway(inner, 10, observability.NewMetricsForTesting())

	c1, err := cached.Route(context.Background(), origin, destination, domain.ProfileDriving)
	require.NoError(t, err)
	c2, err := cached.Route(context.Background(), origin, destination, domain.ProfileDriving)
	require.NoError(t, err)

	assert.Equal(t, c1, c2)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedGateway_ProfileIsPartOfKey(t *testing.T) {
	inner := &countingGateway{candidates: []domain.RouteCandidate{{Rank: 0}}}
	cached := NewCachedGateway(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.Route(context.Background(), origin, destination, domain.ProfileDriving)
	_, _ = cached.Route(context.Background(), origin, destination, domain.ProfileWalking)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGateway_ErrorsAndEmptyNotCached(t *testing.T) {
	inner := &countingGateway{err: domain.ErrDirectionsNetwork}
	cached := NewCachedGateway(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.Route(context.Background(), origin, destination, domain.ProfileDriving)
	require.True(t, errors.Is(err, domain.ErrDirectionsNetwork))

	inner.err = nil
	_, err = cached.Route(context.Background(), origin, destination, domain.ProfileDriving)
	require.NoError(t, err)
	_, _ = cached.Route(context.Background(), origin, destination, domain.ProfileDriving)

	assert.Equal(t, 3, inner.calls)
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache[string](3)

	c.put("a", "A")
	c.put("b", "B")

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A")
	c.put("b", "B")
	c.put("c", "C") // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", result)

	result, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", result)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A")
	c.put("b", "B")
	c.get("a")
	c.put("c", "C") // evicts "b", not "a"

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A1")
	c.put("a", "A2")

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result)
}
