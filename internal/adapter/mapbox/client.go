// Package mapbox talks to the Mapbox Directions and Geocoding APIs.
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/storm-escape-service/internal/observability"
)

const (
	defaultDirectionsURL = "https://api.mapbox.com/directions/v5/mapbox"
	defaultGeocodingURL  = "https://api.mapbox.com/geocoding/v5/mapbox.places"
)

// Client implements domain.DirectionsGateway and domain.ReverseGeocoder.
type Client struct {
	token         string
	httpClient    *http.Client
	directionsURL string
	geocodingURL  string
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewClient creates a Mapbox client. The timeout bounds each request.
func NewClient(token string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		directionsURL: defaultDirectionsURL,
		geocodingURL:  defaultGeocodingURL,
		metrics:       metrics,
		logger:        logger,
	}
}

// getJSON performs a GET and decodes a 200 response into out. Non-200
// responses return a *statusError.
func (c *Client) getJSON(ctx context.Context, fullURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("mapbox API error: status %d: %s", e.code, e.body)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }
