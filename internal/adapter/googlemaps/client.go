// Package googlemaps implements the directions gateway on the Google Maps
// Directions API.
package googlemaps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"googlemaps.github.io/maps"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
	"github.com/couchcryptid/storm-escape-service/internal/observability"
)

const providerName = "google"

// Client implements domain.DirectionsGateway.
type Client struct {
	maps    *maps.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Option configures the underlying maps client.
type Option = maps.ClientOption

// NewClient creates a Google directions client. The timeout bounds each request.
func NewClient(apiKey string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) (*Client, error) {
	opts = append([]Option{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(&http.Client{Timeout: timeout}),
	}, opts...)

	mc, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &Client{maps: mc, metrics: metrics, logger: logger}, nil
}

// Route requests directions with alternatives. Google's route order becomes
// the candidate rank.
func (c *Client) Route(ctx context.Context, origin, destination domain.Position, profile domain.Profile) ([]domain.RouteCandidate, error) {
	mode, err := travelMode(profile)
	if err != nil {
		return nil, err
	}

	req := &maps.DirectionsRequest{
		Origin:       latLng(origin),
		Destination:  latLng(destination),
		Mode:         mode,
		Alternatives: true,
		Avoid:        []maps.Avoid{maps.AvoidFerries},
	}

	start := time.Now()
	routes, _, err := c.maps.Directions(ctx, req)
	c.metrics.DirectionsAPIDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.DirectionsRequests.WithLabelValues(providerName, "error").Inc()
		return nil, classifyError(err)
	}

	candidates := make([]domain.RouteCandidate, 0, len(routes))
	for i, r := range routes {
		points, err := r.OverviewPolyline.Decode()
		if err != nil {
			c.metrics.DirectionsRequests.WithLabelValues(providerName, "error").Inc()
			return nil, fmt.Errorf("%w: decode polyline of route %d: %w", domain.ErrDirectionsFailed, i, err)
		}

		geometry := make([]domain.Position, 0, len(points))
		for _, p := range points {
			geometry = append(geometry, domain.Position{Lat: p.Lat, Lon: p.Lng})
		}

		cand := domain.RouteCandidate{Geometry: geometry, Rank: i}
		for _, leg := range r.Legs {
			cand.DistanceMeters += float64(leg.Distance.Meters)
			cand.DurationSeconds += leg.Duration.Seconds()
		}
		candidates = append(candidates, cand)
	}

	outcome := "success"
	if len(candidates) == 0 {
		outcome = "empty"
	}
	c.metrics.DirectionsRequests.WithLabelValues(providerName, outcome).Inc()
	c.logger.Debug("google directions", "profile", profile, "candidates", len(candidates))
	return candidates, nil
}

func travelMode(p domain.Profile) (maps.Mode, error) {
	switch p {
	case domain.ProfileDriving:
		return maps.TravelModeDriving, nil
	case domain.ProfileWalking:
		return maps.TravelModeWalking, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidProfile, p)
	}
}

func latLng(p domain.Position) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// classifyError maps a maps client failure onto the directions error set.
// Anything that is not a transport failure is a provider rejection.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: google directions request: %w", domain.ErrDirectionsTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return fmt.Errorf("%w: google directions request: %w", domain.ErrDirectionsTimeout, err)
		}
		return fmt.Errorf("%w: google directions request: %w", domain.ErrDirectionsNetwork, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrDirectionsFailed, err)
}
