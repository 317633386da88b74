package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
	"github.com/couchcryptid/storm-escape-service/internal/planner"
)

// Planner is the planning surface the API drives.
type Planner interface {
	StartPlan(ctx context.Context, profile domain.Profile) (planner.Result, error)
	Clear()
	CurrentSessionState() planner.SessionSnapshot
}

// HazardSource hands out the current hazard snapshot.
type HazardSource interface {
	Snapshot() *domain.Snapshot
}

type api struct {
	planner Planner
	hazards HazardSource
	logger  *slog.Logger
}

type planRequest struct {
	Profile string `json:"profile"`
}

type errorResponse struct {
	Error   string                `json:"error"`
	Failure planner.FailureReason `json:"failure,omitempty"`
}

type hazardsResponse struct {
	Version       uint64                `json:"version"`
	BufferRadius  float64               `json:"buffer_radius_meters"`
	Reports       []domain.HazardReport `json:"reports"`
	Buffers       []domain.HazardBuffer `json:"buffers"`
	SafeLocations []domain.SafeLocation `json:"safe_locations"`
	Unblocked     []domain.SafeLocation `json:"unblocked_safe_locations"`
}

type checkResponse struct {
	Position       domain.Position        `json:"position"`
	InDanger       bool                   `json:"in_danger"`
	HazardIDs      []string               `json:"hazard_ids,omitempty"`
	Recommendation *domain.Recommendation `json:"recommendation,omitempty"`
}

// startPlan runs a plan synchronously. The profile defaults to driving when
// the body is empty.
func (a *api) startPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if req.Profile == "" {
		req.Profile = string(domain.ProfileDriving)
	}
	profile, err := domain.ParseProfile(req.Profile)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := a.planner.StartPlan(r.Context(), profile)
	if err != nil {
		status, reason := planErrorStatus(err)
		if status >= http.StatusInternalServerError {
			a.logger.Warn("plan failed", "profile", profile, "error", err)
		}
		writeJSON(w, status, errorResponse{Error: err.Error(), Failure: reason})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func planErrorStatus(err error) (int, planner.FailureReason) {
	switch {
	case errors.Is(err, domain.ErrInvalidProfile):
		return http.StatusBadRequest, ""
	case errors.Is(err, domain.ErrAlreadyPlanning), errors.Is(err, domain.ErrPlanCleared):
		return http.StatusConflict, ""
	case errors.Is(err, domain.ErrPositionUnavailable):
		return http.StatusServiceUnavailable, planner.ReasonPositionUnavailable
	case errors.Is(err, domain.ErrNoSafeDestination):
		return http.StatusNotFound, planner.ReasonNoSafeDestination
	case errors.Is(err, domain.ErrRouteProvider):
		return http.StatusBadGateway, planner.ReasonRouteProviderError
	default:
		return http.StatusInternalServerError, ""
	}
}

func (a *api) currentPlan(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.planner.CurrentSessionState())
}

func (a *api) clearPlan(w http.ResponseWriter, _ *http.Request) {
	a.planner.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) hazardSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := a.hazards.Snapshot()
	writeJSON(w, http.StatusOK, hazardsResponse{
		Version:       snap.Version(),
		BufferRadius:  snap.BufferRadius(),
		Reports:       snap.Reports(),
		Buffers:       snap.Buffers(),
		SafeLocations: snap.SafeLocations(),
		Unblocked:     snap.UnblockedSafeLocations(),
	})
}

func (a *api) checkPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := parsePosition(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	snap := a.hazards.Snapshot()
	resp := checkResponse{Position: pos, HazardIDs: snap.BuffersContaining(pos)}
	resp.InDanger = len(resp.HazardIDs) > 0
	if resp.InDanger {
		if rec, err := domain.Nearest(pos, snap.UnblockedSafeLocations()); err == nil {
			resp.Recommendation = &rec
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func parsePosition(r *http.Request) (domain.Position, error) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return domain.Position{}, errors.New("lat must be a number")
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return domain.Position{}, errors.New("lon must be a number")
	}
	pos := domain.Position{Lat: lat, Lon: lon}
	if !pos.Valid() {
		return domain.Position{}, errors.New("coordinates out of range")
	}
	return pos, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}
