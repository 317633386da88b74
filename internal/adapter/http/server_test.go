package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/storm-escape-service/internal/adapter/http"
	"github.com/couchcryptid/storm-escape-service/internal/domain"
	"github.com/couchcryptid/storm-escape-service/internal/planner"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockPlanner struct {
	result   planner.Result
	err      error
	profile  domain.Profile
	cleared  bool
	snapshot planner.SessionSnapshot
}

func (m *mockPlanner) StartPlan(_ context.Context, profile domain.Profile) (planner.Result, error) {
	m.profile = profile
	return m.result, m.err
}

func (m *mockPlanner) Clear() { m.cleared = true }

func (m *mockPlanner) CurrentSessionState() planner.SessionSnapshot { return m.snapshot }

func newTestServer(readyErr error, p *mockPlanner, index *domain.HazardIndex) *httpadapter.Server {
	if index == nil {
		index = domain.NewHazardIndex(domain.DefaultSafeLocations())
	}
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr},
		httpadapter.Routes{Planner: p, Hazards: index}, slog.Default())
}

func do(srv http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := do(newTestServer(nil, &mockPlanner{}, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := do(newTestServer(nil, &mockPlanner{}, nil), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := do(newTestServer(fmt.Errorf("not ready yet"), &mockPlanner{}, nil), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(newTestServer(nil, &mockPlanner{}, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStartPlan_Success(t *testing.T) {
	dest := domain.DefaultSafeLocations()[1]
	p := &mockPlanner{result: planner.Result{
		SessionID:   "s-1",
		Destination: domain.Recommendation{Location: dest, DistanceMeters: 1200},
		Route:       domain.RouteCandidate{Rank: 1, Geometry: []domain.Position{{Lat: 1, Lon: 1}}},
	}}

	rec := do(newTestServer(nil, p, nil), http.MethodPost, "/v1/plan", `{"profile":"walk"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ProfileWalking, p.profile)

	var body planner.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "s-1", body.SessionID)
	assert.Equal(t, dest.ID, body.Destination.Location.ID)
	assert.Equal(t, 1, body.Route.Rank)
}

func TestStartPlan_DefaultsToDriving(t *testing.T) {
	p := &mockPlanner{}
	rec := do(newTestServer(nil, p, nil), http.MethodPost, "/v1/plan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ProfileDriving, p.profile)
}

func TestStartPlan_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown profile", `{"profile":"flying"}`},
		{"malformed body", `{"profile":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockPlanner{}
			rec := do(newTestServer(nil, p, nil), http.MethodPost, "/v1/plan", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, p.profile, "planner must not be called")
		})
	}
}

func TestStartPlan_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		failure planner.FailureReason
	}{
		{"already planning", domain.ErrAlreadyPlanning, http.StatusConflict, ""},
		{"cleared", domain.ErrPlanCleared, http.StatusConflict, ""},
		{"position", fmt.Errorf("locate: %w", domain.ErrPositionTimeout), http.StatusServiceUnavailable, planner.ReasonPositionUnavailable},
		{"no destination", domain.ErrNoSafeDestination, http.StatusNotFound, planner.ReasonNoSafeDestination},
		{"provider", fmt.Errorf("route: %w", domain.ErrDirectionsNetwork), http.StatusBadGateway, planner.ReasonRouteProviderError},
		{"no route", domain.ErrNoRoute, http.StatusBadGateway, planner.ReasonRouteProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestServer(nil, &mockPlanner{err: tt.err}, nil), http.MethodPost, "/v1/plan", `{"profile":"driving"}`)
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.err.Error(), body["error"])
			assert.Equal(t, string(tt.failure), body["failure"])
		})
	}
}

func TestCurrentPlanAndClear(t *testing.T) {
	p := &mockPlanner{snapshot: planner.SessionSnapshot{ID: "s-2", State: planner.StateCompleted}}
	srv := newTestServer(nil, p, nil)

	rec := do(srv, http.MethodGet, "/v1/plan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap planner.SessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, planner.StateCompleted, snap.State)

	rec = do(srv, http.MethodDelete, "/v1/plan", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, p.cleared)
}

func TestHazardCheck(t *testing.T) {
	index := domain.NewHazardIndex(domain.DefaultSafeLocations())
	index.Upsert(domain.HazardReport{ID: "r-1", Position: domain.Position{Lat: -23.5505, Lon: -46.6333}, Severity: domain.SeverityDanger})
	srv := newTestServer(nil, &mockPlanner{}, index)

	rec := do(srv, http.MethodGet, "/v1/hazards/check?lat=-23.5505&lon=-46.6333", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		InDanger       bool                   `json:"in_danger"`
		HazardIDs      []string               `json:"hazard_ids"`
		Recommendation *domain.Recommendation `json:"recommendation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.InDanger)
	assert.Equal(t, []string{"r-1"}, body.HazardIDs)
	require.NotNil(t, body.Recommendation)

	rec = do(srv, http.MethodGet, "/v1/hazards/check?lat=-23.60&lon=-46.70", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body.Recommendation = nil
	body.HazardIDs = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.InDanger)
	assert.Nil(t, body.Recommendation)
}

func TestHazardCheck_InvalidCoordinates(t *testing.T) {
	srv := newTestServer(nil, &mockPlanner{}, nil)
	for _, q := range []string{"", "?lat=abc&lon=1", "?lat=1", "?lat=95&lon=0"} {
		rec := do(srv, http.MethodGet, "/v1/hazards/check"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHazardSnapshot(t *testing.T) {
	index := domain.NewHazardIndex(domain.DefaultSafeLocations())
	index.Upsert(
		domain.HazardReport{ID: "d", Position: domain.Position{Lat: -23.5320, Lon: -46.6420}, Severity: domain.SeverityDanger},
		domain.HazardReport{ID: "w", Position: domain.Position{Lat: -23.5, Lon: -46.6}, Severity: domain.SeverityWarning},
	)

	rec := do(newTestServer(nil, &mockPlanner{}, index), http.MethodGet, "/v1/hazards", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Version   uint64                `json:"version"`
		Reports   []domain.HazardReport `json:"reports"`
		Buffers   []domain.HazardBuffer `json:"buffers"`
		Unblocked []domain.SafeLocation `json:"unblocked_safe_locations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, uint64(1), body.Version)
	assert.Len(t, body.Reports, 2)
	assert.Len(t, body.Buffers, 1)
	assert.Len(t, body.Unblocked, 3)
}
