package planner

import (
	"time"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
)

// State is a planning session's position in the state machine.
type State string

const (
	StateIdle                 State = "idle"
	StateLocating             State = "locating"
	StateSelectingDestination State = "selecting_destination"
	StateRequestingRoutes     State = "requesting_routes"
	StateScoring              State = "scoring"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
)

// Active reports whether a session in this state is still in flight.
func (s State) Active() bool {
	switch s {
	case StateLocating, StateSelectingDestination, StateRequestingRoutes, StateScoring:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state ends a session.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// FailureReason explains a failed session.
type FailureReason string

const (
	ReasonPositionUnavailable FailureReason = "position_unavailable"
	ReasonNoSafeDestination   FailureReason = "no_safe_destination"
	ReasonRouteProviderError  FailureReason = "route_provider_error"
)

// transitions lists the forward edges of the state machine. Clear is handled
// separately since it can leave any state.
var transitions = map[State][]State{
	StateIdle:                 {StateLocating},
	StateLocating:             {StateSelectingDestination, StateFailed},
	StateSelectingDestination: {StateRequestingRoutes, StateFailed},
	StateRequestingRoutes:     {StateScoring, StateFailed},
	StateScoring:              {StateCompleted},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SessionSnapshot is a copy of the current session, safe to hand to callers.
type SessionSnapshot struct {
	ID            string                 `json:"id,omitempty"`
	State         State                  `json:"state"`
	Profile       domain.Profile         `json:"profile,omitempty"`
	Origin        *domain.Position       `json:"origin,omitempty"`
	Destination   *domain.Recommendation `json:"destination,omitempty"`
	Route         *domain.RouteCandidate `json:"route,omitempty"`
	Degraded      bool                   `json:"degraded"`
	Intersections []string               `json:"intersections,omitempty"`
	Failure       FailureReason          `json:"failure,omitempty"`
	Error         string                 `json:"error,omitempty"`
	StartedAt     time.Time              `json:"started_at,omitzero"`
	FinishedAt    time.Time              `json:"finished_at,omitzero"`
}

// Result is the outcome of a completed plan.
type Result struct {
	SessionID     string                `json:"session_id"`
	Destination   domain.Recommendation `json:"destination"`
	Route         domain.RouteCandidate `json:"route"`
	Degraded      bool                  `json:"degraded"`
	Intersections []string              `json:"intersections,omitempty"`
}
