package mapbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
)

const providerName = "mapbox"

// Route requests driving or walking directions with alternatives. Candidates
// come back in Mapbox's order, which becomes their rank.
func (c *Client) Route(ctx context.Context, origin, destination domain.Position, profile domain.Profile) ([]domain.RouteCandidate, error) {
	mbProfile, err := mapboxProfile(profile)
	if err != nil {
		return nil, err
	}

	// Mapbox uses lon,lat order.
	coords := fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", origin.Lon, origin.Lat, destination.Lon, destination.Lat)
	params := url.Values{
		"access_token": {c.token},
		"alternatives": {"true"},
		"geometries":   {"geojson"},
		"overview":     {"full"},
		"exclude":      {"ferry"},
	}
	fullURL := fmt.Sprintf("%s/%s/%s?%s", c.directionsURL, mbProfile, coords, params.Encode())

	start := time.Now()
	var resp directionsResponse
	err = c.getJSON(ctx, fullURL, &resp)
	c.metrics.DirectionsAPIDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.DirectionsRequests.WithLabelValues(providerName, "error").Inc()
		return nil, classifyError(err)
	}

	switch resp.Code {
	case "Ok":
	case "NoRoute", "NoSegment":
		c.metrics.DirectionsRequests.WithLabelValues(providerName, "empty").Inc()
		c.logger.Warn("mapbox found no route", "code", resp.Code, "profile", profile)
		return nil, nil
	default:
		c.metrics.DirectionsRequests.WithLabelValues(providerName, "error").Inc()
		return nil, fmt.Errorf("%w: mapbox code %s: %s", domain.ErrDirectionsFailed, resp.Code, resp.Message)
	}

	candidates := make([]domain.RouteCandidate, 0, len(resp.Routes))
	for i, r := range resp.Routes {
		geometry := make([]domain.Position, 0, len(r.Geometry.Coordinates))
		for _, pt := range r.Geometry.Coordinates {
			if len(pt) < 2 {
				c.metrics.DirectionsRequests.WithLabelValues(providerName, "error").Inc()
				return nil, fmt.Errorf("%w: malformed coordinate in route %d", domain.ErrDirectionsFailed, i)
			}
			geometry = append(geometry, domain.Position{Lat: pt[1], Lon: pt[0]})
		}
		candidates = append(candidates, domain.RouteCandidate{
			Geometry:        geometry,
			Rank:            i,
			DistanceMeters:  r.Distance,
			DurationSeconds: r.Duration,
		})
	}

	outcome := "success"
	if len(candidates) == 0 {
		outcome = "empty"
	}
	c.metrics.DirectionsRequests.WithLabelValues(providerName, outcome).Inc()
	c.logger.Debug("mapbox directions", "profile", profile, "candidates", len(candidates))
	return candidates, nil
}

func mapboxProfile(p domain.Profile) (string, error) {
	switch p {
	case domain.ProfileDriving:
		return "driving", nil
	case domain.ProfileWalking:
		return "walking", nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidProfile, p)
	}
}

// classifyError maps a transport or HTTP failure onto the directions error set.
func classifyError(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %w", domain.ErrDirectionsFailed, err)
	}
	var de *decodeError
	if errors.As(err, &de) {
		return fmt.Errorf("%w: %w", domain.ErrDirectionsFailed, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: mapbox directions request: %w", domain.ErrDirectionsTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: mapbox directions request: %w", domain.ErrDirectionsTimeout, err)
	}
	return fmt.Errorf("%w: mapbox directions request: %w", domain.ErrDirectionsNetwork, err)
}

// Mapbox Directions API response types.

type directionsResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Routes  []route `json:"routes"`
}

type route struct {
	Distance float64  `json:"distance"` // meters
	Duration float64  `json:"duration"` // seconds
	Geometry geometry `json:"geometry"`
}

type geometry struct {
	Coordinates [][]float64 `json:"coordinates"` // [lon, lat]
}
