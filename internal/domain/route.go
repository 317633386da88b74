package domain

import (
	"context"
	"fmt"
	"strings"
)

// Profile is the travel mode requested from the directions provider.
type Profile string

const (
	ProfileDriving Profile = "driving"
	ProfileWalking Profile = "walking"
)

// Valid reports whether p is a known profile.
func (p Profile) Valid() bool {
	return p == ProfileDriving || p == ProfileWalking
}

// ParseProfile accepts a profile name or the map's travel mode aliases
// ("car", "walk").
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "driving", "car":
		return ProfileDriving, nil
	case "walking", "walk":
		return ProfileWalking, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidProfile, s)
	}
}

// RouteCandidate is one route geometry returned by the directions provider.
// Rank is the provider's preference order, zero being the top choice.
type RouteCandidate struct {
	Geometry        []Position `json:"geometry"`
	Rank            int        `json:"rank"`
	DistanceMeters  float64    `json:"distance_meters,omitempty"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`
}

// DirectionsGateway fetches candidate routes from an external provider.
//
// Implementations request alternative geometries when the provider supports
// them, never retry, and return candidates in the provider's rank order.
// Failures wrap ErrDirectionsNetwork, ErrDirectionsFailed or ErrDirectionsTimeout.
type DirectionsGateway interface {
	Route(ctx context.Context, origin, destination Position, profile Profile) ([]RouteCandidate, error)
}
