package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
	"github.com/couchcryptid/storm-escape-service/internal/observability"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

var (
	origin      = domain.Position{Lat: -23.5505, Lon: -46.6333}
	destination = domain.Position{Lat: -23.5320, Lon: -46.6420}
)

func testClient(baseURL string) *Client {
	return &Client{
		token:         testToken,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		directionsURL: baseURL,
		geocodingURL:  baseURL,
		metrics:       observability.NewMetricsForTesting(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func jsonServer(t *testing.T, check func(r *http.Request), body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Route_Success(t *testing.T) {
	srv := jsonServer(t, func(r *http.Request) {
		assert.Equal(t, "/driving/-46.633300,-23.550500;-46.642000,-23.532000", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, testToken, q.Get("access_token"))
		assert.Equal(t, "true", q.Get("alternatives"))
		assert.Equal(t, "geojson", q.Get("geometries"))
		assert.Equal(t, "ferry", q.Get("exclude"))
	}, directionsResponse{
		Code: "Ok",
		Routes: []route{
			{Distance: 2500, Duration: 420, Geometry: geometry{Coordinates: [][]float64{{-46.6333, -23.5505}, {-46.6420, -23.5320}}}},
			{Distance: 2900, Duration: 480, Geometry: geometry{Coordinates: [][]float64{{-46.6333, -23.5505}, {-46.6300, -23.5400}, {-46.6420, -23.5320}}}},
		},
	})

	c := testClient(srv.URL)
	candidates, err := c.Route(context.Background(), origin, destination, domain.ProfileDriving)
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, 0, candidates[0].Rank)
	assert.Equal(t, 1, candidates[1].Rank)
	assert.Equal(t, domain.Position{Lat: -23.5505, Lon: -46.6333}, candidates[0].Geometry[0])
	assert.Len(t, candidates[1].Geometry, 3)
	assert.Equal(t, 2500.0, candidates[0].DistanceMeters)
	assert.Equal(t, 420.0, candidates[0].DurationSeconds)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.DirectionsRequests.WithLabelValues("mapbox", "success")))
}

func TestClient_Route_WalkingProfile(t *testing.T) {
	srv := jsonServer(t, func(r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/walking/"))
	}, directionsResponse{Code: "Ok"})

	candidates, err := testClient(srv.URL).Route(context.Background(), origin, destination, domain.ProfileWalking)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestClient_Route_NoRoute(t *testing.T) {
	srv := jsonServer(t, nil, directionsResponse{Code: "NoRoute", Message: "No route found"})

	c := testClient(srv.URL)
	candidates, err := c.Route(context.Background(), origin, destination, domain.ProfileDriving)
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.DirectionsRequests.WithLabelValues("mapbox", "empty")))
}

func TestClient_Route_ProviderCode(t *testing.T) {
	srv := jsonServer(t, nil, directionsResponse{Code: "InvalidInput", Message: "bad coordinates"})

	_, err := testClient(srv.URL).Route(context.Background(), origin, destination, domain.ProfileDriving)
	require.ErrorIs(t, err, domain.ErrDirectionsFailed)
	assert.Contains(t, err.Error(), "InvalidInput")
}

func TestClient_Route_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Route(context.Background(), origin, destination, domain.ProfileDriving)
	require.ErrorIs(t, err, domain.ErrDirectionsFailed)
	assert.ErrorIs(t, err, domain.ErrRouteProvider)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.DirectionsRequests.WithLabelValues("mapbox", "error")))
}

func TestClient_Route_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"code": "Ok", "routes": [`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Route(context.Background(), origin, destination, domain.ProfileDriving)
	require.ErrorIs(t, err, domain.ErrDirectionsFailed)
	assert.Contains(t, err.Error(), "decode response")
}

func TestClient_Route_MalformedCoordinate(t *testing.T) {
	srv := jsonServer(t, nil, directionsResponse{
		Code:   "Ok",
		Routes: []route{{Geometry: geometry{Coordinates: [][]float64{{-46.6333}}}}},
	})

	_, err := testClient(srv.URL).Route(context.Background(), origin, destination, domain.ProfileDriving)
	assert.ErrorIs(t, err, domain.ErrDirectionsFailed)
}

func TestClient_Route_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}

	_, err := c.Route(context.Background(), origin, destination, domain.ProfileDriving)
	assert.ErrorIs(t, err, domain.ErrDirectionsTimeout)
}

func TestClient_Route_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := testClient(url).Route(context.Background(), origin, destination, domain.ProfileDriving)
	assert.ErrorIs(t, err, domain.ErrDirectionsNetwork)
}

func TestClient_Route_InvalidProfile(t *testing.T) {
	_, err := testClient("http://unused").Route(context.Background(), origin, destination, domain.Profile("cycling"))
	assert.ErrorIs(t, err, domain.ErrInvalidProfile)
}

func TestClient_ReverseGeocode_Success(t *testing.T) {
	srv := jsonServer(t, func(r *http.Request) {
		assert.Equal(t, "/-46.642500,-23.548500.json", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
	}, geocodingResponse{
		Features: []feature{{PlaceName: "Rua Augusta, São Paulo, Brazil", Text: "Rua Augusta", Relevance: 0.98}},
	})

	c := testClient(srv.URL)
	result, err := c.ReverseGeocode(context.Background(), -23.5485, -46.6425)
	require.NoError(t, err)

	assert.Equal(t, "Rua Augusta, São Paulo, Brazil", result.FormattedAddress)
	assert.Equal(t, "Rua Augusta", result.PlaceName)
	assert.Equal(t, 0.98, result.Confidence)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("success")))
}

func TestClient_ReverseGeocode_NoResults(t *testing.T) {
	srv := jsonServer(t, nil, geocodingResponse{Features: []feature{}})

	result, err := testClient(srv.URL).ReverseGeocode(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, result.FormattedAddress)
}

func TestClient_ReverseGeocode_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ReverseGeocode(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
