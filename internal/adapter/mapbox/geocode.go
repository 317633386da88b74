package mapbox

import (
	"context"
	"fmt"
	"net/url"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
)

// ReverseGeocode converts coordinates to place details. No match yields a
// zero result and no error.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", lon, lat)
	u := fmt.Sprintf("%s/%s.json", c.geocodingURL, coord)
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}

	var resp geocodingResponse
	if err := c.getJSON(ctx, u+"?"+params.Encode(), &resp); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("reverse geocode request: %w", err)
	}

	if len(resp.Features) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		return domain.GeocodingResult{}, nil
	}

	c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	f := resp.Features[0]
	return domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		PlaceName:        f.Text,
		Confidence:       f.Relevance,
	}, nil
}

// Mapbox Geocoding API response types.

type geocodingResponse struct {
	Features []feature `json:"features"`
}

type feature struct {
	PlaceName string  `json:"place_name"`
	Text      string  `json:"text"`
	Relevance float64 `json:"relevance"`
}
