// Package ratelimit throttles calls to a directions provider.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
)

// Gateway is a DirectionsGateway decorator that waits for a token before each
// call. A wait that cannot complete before ctx ends is reported as a
// directions timeout; the call is never retried.
type Gateway struct {
	inner   domain.DirectionsGateway
	limiter *rate.Limiter
}

// NewGateway allows perSecond requests on average with bursts of up to burst.
func NewGateway(inner domain.DirectionsGateway, perSecond float64, burst int) *Gateway {
	return &Gateway{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (g *Gateway) Route(ctx context.Context, origin, destination domain.Position, profile domain.Profile) ([]domain.RouteCandidate, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %w", domain.ErrDirectionsTimeout, err)
	}
	return g.inner.Route(ctx, origin, destination, profile)
}
