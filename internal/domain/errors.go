package domain

import (
	"errors"
	"fmt"
)

// Positioning failures. All of them match ErrPositionUnavailable.
var (
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrPermissionDenied    = fmt.Errorf("%w: permission denied", ErrPositionUnavailable)
	ErrPositionTimeout     = fmt.Errorf("%w: timed out waiting for a fix", ErrPositionUnavailable)
	ErrNoFix               = fmt.Errorf("%w: no fix", ErrPositionUnavailable)
)

// Directions failures. All of them match ErrRouteProvider.
var (
	ErrRouteProvider     = errors.New("route provider error")
	ErrDirectionsNetwork = fmt.Errorf("%w: network failure", ErrRouteProvider)
	ErrDirectionsFailed  = fmt.Errorf("%w: provider rejected request", ErrRouteProvider)
	ErrDirectionsTimeout = fmt.Errorf("%w: timeout", ErrRouteProvider)
	ErrNoRoute           = fmt.Errorf("%w: no route candidates", ErrRouteProvider)
)

var (
	// ErrNoSafeDestination means every known safe location is inside a hazard buffer.
	ErrNoSafeDestination = errors.New("no safe destination available")

	// ErrAlreadyPlanning is returned when a plan is started while another is in flight.
	ErrAlreadyPlanning = errors.New("a plan is already in progress")

	// ErrPlanCleared is returned to the caller of a plan that was cleared or
	// superseded before it finished.
	ErrPlanCleared = errors.New("plan was cleared")

	// ErrInvalidProfile is returned for an unknown travel profile.
	ErrInvalidProfile = errors.New("invalid travel profile")
)
