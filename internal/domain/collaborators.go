package domain

import "context"

// Positioner supplies device positions.
type Positioner interface {
	// CurrentPosition returns a single fix. Failures wrap ErrPermissionDenied,
	// ErrPositionTimeout or ErrNoFix.
	CurrentPosition(ctx context.Context) (Position, error)

	// WatchPositions streams fixes until ctx is cancelled, then closes the channel.
	WatchPositions(ctx context.Context) (<-chan Position, error)
}

// MarkerKind distinguishes the markers the planner draws.
type MarkerKind string

const (
	MarkerOrigin      MarkerKind = "origin"
	MarkerDestination MarkerKind = "destination"
)

// Marker is a point overlay on the map.
type Marker struct {
	ID       string     `json:"id"`
	Kind     MarkerKind `json:"kind"`
	Position Position   `json:"position"`
	Label    string     `json:"label,omitempty"`
}

// Renderer accepts draw and remove commands for the map surface.
// Implementations must not block.
type Renderer interface {
	DrawRoute(route RouteCandidate, profile Profile, degraded bool)
	RemoveRoute()
	DrawMarker(m Marker)
	RemoveMarker(id string)
}

// Notification is what the notification sink delivers to the user.
type Notification struct {
	Severity      string `json:"severity"`
	LocationLabel string `json:"location_label"`
	Message       string `json:"message"`
}

// Notifier delivers notifications. Delivery and permission concerns are its own.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// GeocodingResult contains place data returned by a geocoding provider.
type GeocodingResult struct {
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// ReverseGeocoder turns coordinates into a human-readable place.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
