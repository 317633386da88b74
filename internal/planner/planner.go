// Package planner drives escape-route planning sessions: locate the user,
// pick the nearest unblocked safe location, fetch route candidates and choose
// the one that avoids danger reports.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
	"github.com/couchcryptid/storm-escape-service/internal/observability"
)

// HazardSource hands out the current hazard snapshot.
type HazardSource interface {
	Snapshot() *domain.Snapshot
}

// Option configures a Planner.
type Option func(*Planner)

// WithClock overrides the clock used for session timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(p *Planner) { p.clock = c }
}

type session struct {
	id            string
	state         State
	profile       domain.Profile
	origin        *domain.Position
	destination   *domain.Recommendation
	route         *domain.RouteCandidate
	degraded      bool
	intersections []string
	failure       FailureReason
	err           error
	startedAt     time.Time
	finishedAt    time.Time
}

func (s *session) originMarkerID() string      { return s.id + ":origin" }
func (s *session) destinationMarkerID() string { return s.id + ":destination" }

// Planner owns at most one planning session at a time.
type Planner struct {
	positioner domain.Positioner
	hazards    HazardSource
	gateway    domain.DirectionsGateway
	renderer   domain.Renderer
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock

	mu      sync.Mutex
	current *session
}

// New creates a Planner. The renderer is called while the planner's lock is
// held and must not block.
func New(positioner domain.Positioner, hazards HazardSource, gateway domain.DirectionsGateway,
	renderer domain.Renderer, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Planner {
	p := &Planner{
		positioner: positioner,
		hazards:    hazards,
		gateway:    gateway,
		renderer:   renderer,
		logger:     logger,
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StartPlan runs one planning session to completion.
//
// An unknown profile is rejected with ErrInvalidProfile before any session
// starts. It fails fast with ErrAlreadyPlanning when another session is in flight,
// leaving that session untouched. A finished session is superseded and its
// drawn route removed. If the session is cleared while a collaborator call is
// outstanding, the late result is dropped and ErrPlanCleared returned.
func (p *Planner) StartPlan(ctx context.Context, profile domain.Profile) (Result, error) {
	if !profile.Valid() {
		return Result{}, fmt.Errorf("%w: %q", domain.ErrInvalidProfile, profile)
	}

	s, err := p.begin(profile)
	if err != nil {
		return Result{}, err
	}

	pos, err := p.positioner.CurrentPosition(ctx)

	dest, err := p.selectDestination(s, pos, err)
	if err != nil {
		return Result{}, err
	}

	candidates, err := p.gateway.Route(ctx, pos, dest.Location.Position, profile)

	return p.finish(s, candidates, err)
}

func (p *Planner) begin(profile domain.Profile) (*session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && p.current.state.Active() {
		p.metrics.PlanOutcomes.WithLabelValues("rejected").Inc()
		return nil, ErrAlreadyPlanning
	}
	if p.current != nil && p.current.state == StateCompleted {
		p.undraw(p.current)
	}

	s := &session{
		id:        uuid.NewString(),
		state:     StateIdle,
		profile:   profile,
		startedAt: p.clock.Now(),
	}
	p.advance(s, StateLocating)
	p.current = s

	p.logger.Info("escape plan started", "session_id", s.id, "profile", profile)
	return s, nil
}

// selectDestination records the fix (or its failure) and picks the nearest
// unblocked safe location from the current hazard snapshot.
func (p *Planner) selectDestination(s *session, pos domain.Position, posErr error) (domain.Recommendation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != s {
		return domain.Recommendation{}, ErrPlanCleared
	}

	if posErr != nil {
		if !errors.Is(posErr, domain.ErrPositionUnavailable) {
			posErr = fmt.Errorf("%w: %w", domain.ErrPositionUnavailable, posErr)
		}
		p.fail(s, ReasonPositionUnavailable, posErr)
		return domain.Recommendation{}, posErr
	}

	s.origin = &pos
	p.advance(s, StateSelectingDestination)

	rec, err := domain.Nearest(pos, p.hazards.Snapshot().UnblockedSafeLocations())
	if err != nil {
		p.fail(s, ReasonNoSafeDestination, err)
		return domain.Recommendation{}, err
	}

	s.destination = &rec
	p.advance(s, StateRequestingRoutes)
	p.logger.Debug("escape destination selected",
		"session_id", s.id,
		"location_id", rec.Location.ID,
		"distance_m", rec.DistanceMeters,
	)
	return rec, nil
}

// finish scores the candidates against the hazards current when the
// directions call returned, not those seen when the destination was chosen.
func (p *Planner) finish(s *session, candidates []domain.RouteCandidate, routeErr error) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != s {
		return Result{}, ErrPlanCleared
	}

	if routeErr != nil {
		if !errors.Is(routeErr, domain.ErrRouteProvider) {
			routeErr = fmt.Errorf("%w: %w", domain.ErrRouteProvider, routeErr)
		}
		p.fail(s, ReasonRouteProviderError, routeErr)
		return Result{}, routeErr
	}
	if len(candidates) == 0 {
		p.fail(s, ReasonRouteProviderError, domain.ErrNoRoute)
		return Result{}, domain.ErrNoRoute
	}

	p.advance(s, StateScoring)
	sel := SelectRoute(candidates, p.hazards.Snapshot())

	s.route = &sel.Route
	s.degraded = sel.Degraded
	s.intersections = sel.Intersections
	s.finishedAt = p.clock.Now()
	p.advance(s, StateCompleted)

	p.renderer.DrawMarker(domain.Marker{ID: s.originMarkerID(), Kind: domain.MarkerOrigin, Position: *s.origin})
	p.renderer.DrawMarker(domain.Marker{
		ID:       s.destinationMarkerID(),
		Kind:     domain.MarkerDestination,
		Position: s.destination.Location.Position,
		Label:    s.destination.Location.Name,
	})
	p.renderer.DrawRoute(sel.Route, s.profile, sel.Degraded)

	outcome := "completed"
	if sel.Degraded {
		outcome = "degraded"
		p.logger.Warn("no hazard-free route, using top-ranked candidate",
			"session_id", s.id,
			"candidates", len(candidates),
			"intersections", sel.Intersections,
		)
	}
	p.metrics.PlanOutcomes.WithLabelValues(outcome).Inc()
	p.metrics.PlanDuration.Observe(s.finishedAt.Sub(s.startedAt).Seconds())
	p.logger.Info("escape plan completed",
		"session_id", s.id,
		"location_id", s.destination.Location.ID,
		"rank", sel.Route.Rank,
		"degraded", sel.Degraded,
	)

	return Result{
		SessionID:     s.id,
		Destination:   *s.destination,
		Route:         sel.Route,
		Degraded:      sel.Degraded,
		Intersections: sel.Intersections,
	}, nil
}

// Clear discards the current session from any state. In-flight collaborator
// calls are not aborted; their results are dropped when they arrive. A
// completed session's route and markers are removed from the map.
func (p *Planner) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.current
	if s == nil {
		return
	}
	if s.state == StateCompleted {
		p.undraw(s)
	}
	if s.state.Active() {
		p.metrics.PlanOutcomes.WithLabelValues("cleared").Inc()
	}
	p.current = nil
	p.logger.Info("escape plan cleared", "session_id", s.id, "state", s.state)
}

// CurrentSessionState returns a copy of the current session. With no session
// the state is idle.
func (p *Planner) CurrentSessionState() SessionSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.current
	if s == nil {
		return SessionSnapshot{State: StateIdle}
	}

	snap := SessionSnapshot{
		ID:         s.id,
		State:      s.state,
		Profile:    s.profile,
		Degraded:   s.degraded,
		Failure:    s.failure,
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
	}
	if s.origin != nil {
		origin := *s.origin
		snap.Origin = &origin
	}
	if s.destination != nil {
		dest := *s.destination
		snap.Destination = &dest
	}
	if s.route != nil {
		route := *s.route
		route.Geometry = append([]domain.Position(nil), s.route.Geometry...)
		snap.Route = &route
	}
	if len(s.intersections) > 0 {
		snap.Intersections = append([]string(nil), s.intersections...)
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

func (p *Planner) fail(s *session, reason FailureReason, err error) {
	s.failure = reason
	s.err = err
	s.finishedAt = p.clock.Now()
	p.advance(s, StateFailed)

	p.metrics.PlanOutcomes.WithLabelValues(string(reason)).Inc()
	p.metrics.PlanDuration.Observe(s.finishedAt.Sub(s.startedAt).Seconds())
	p.logger.Warn("escape plan failed", "session_id", s.id, "reason", reason, "error", err)
}

func (p *Planner) advance(s *session, to State) {
	if !canTransition(s.state, to) {
		panic(fmt.Sprintf("planner: illegal transition %s -> %s", s.state, to))
	}
	s.state = to
}

func (p *Planner) undraw(s *session) {
	p.renderer.RemoveRoute()
	p.renderer.RemoveMarker(s.originMarkerID())
	p.renderer.RemoveMarker(s.destinationMarkerID())
}
