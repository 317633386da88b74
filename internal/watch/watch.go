// Package watch raises a danger alert when the tracked position enters a
// hazard buffer. An episode starts on entry and ends when the position leaves
// every buffer, so a user standing in a hazard zone is alerted once.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
	"github.com/couchcryptid/storm-escape-service/internal/observability"
)

const (
	alertSeverity        = "high"
	defaultLocationLabel = "Your location"

	// deliveryQueueSize bounds the alerts waiting on the notifier.
	deliveryQueueSize = 16
)

// HazardSource hands out the current hazard snapshot.
type HazardSource interface {
	Snapshot() *domain.Snapshot
}

// Option configures a Watch.
type Option func(*Watch)

// WithNotifier delivers each alert to n.
func WithNotifier(n domain.Notifier) Option {
	return func(w *Watch) { w.notifier = n }
}

// WithGeocoder labels alerts with the reverse-geocoded address of the position.
func WithGeocoder(g domain.ReverseGeocoder) Option {
	return func(w *Watch) { w.geocoder = g }
}

// WithClock overrides the clock used to stamp events.
func WithClock(c clockwork.Clock) Option {
	return func(w *Watch) { w.clock = c }
}

// Watch tracks one position stream. Its episode memory is independent of any
// planning session.
type Watch struct {
	hazards  HazardSource
	broker   EventBroker
	notifier domain.Notifier
	geocoder domain.ReverseGeocoder
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock

	mu      sync.Mutex
	alerted bool
}

// New creates an armed Watch.
func New(hazards HazardSource, broker EventBroker, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Watch {
	w := &Watch{
		hazards: hazards,
		broker:  broker,
		logger:  logger,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run observes positions from p until ctx is cancelled or the stream ends.
// Episode memory and event publication happen on the loop. Geocoding and
// notification run on a separate goroutine fed by a bounded queue; alerts
// that do not fit are dropped. Run returns once queued alerts are delivered.
func (w *Watch) Run(ctx context.Context, p domain.Positioner) error {
	positions, err := p.WatchPositions(ctx)
	if err != nil {
		return fmt.Errorf("watch positions: %w", err)
	}

	queue := make(chan domain.DangerEpisodeEvent, deliveryQueueSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for evt := range queue {
			if err := w.Deliver(ctx, evt); err != nil {
				w.logger.Error("danger notification failed", "event_id", evt.ID, "error", err)
			}
		}
	}()
	defer func() {
		close(queue)
		wg.Wait()
	}()

	w.logger.Info("danger watch started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("danger watch stopping", "reason", ctx.Err())
			return nil
		case pos, ok := <-positions:
			if !ok {
				w.logger.Info("position stream closed")
				return nil
			}
			if evt, raised := w.Observe(ctx, pos); raised {
				w.enqueue(queue, evt)
			}
		}
	}
}

func (w *Watch) enqueue(queue chan<- domain.DangerEpisodeEvent, evt domain.DangerEpisodeEvent) {
	select {
	case queue <- evt:
	default:
		w.logger.Warn("notification queue full, dropping alert", "event_id", evt.ID)
	}
}

// Alerted reports whether an episode is in progress.
func (w *Watch) Alerted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alerted
}

// Observe feeds one position fix. It returns the raised event when the fix
// starts a new danger episode; the event is published on the broker before
// Observe returns. Observe does not notify; see Deliver.
func (w *Watch) Observe(_ context.Context, pos domain.Position) (domain.DangerEpisodeEvent, bool) {
	w.metrics.PositionUpdates.Inc()

	snap := w.hazards.Snapshot()
	owners := snap.BuffersContaining(pos)

	if !w.enter(len(owners) > 0) {
		return domain.DangerEpisodeEvent{}, false
	}

	evt := domain.DangerEpisodeEvent{
		ID:            uuid.NewString(),
		Position:      pos,
		HazardIDs:     owners,
		LocationLabel: defaultLocationLabel,
		OccurredAt:    w.clock.Now().UTC(),
	}
	if rec, err := domain.Nearest(pos, snap.UnblockedSafeLocations()); err == nil {
		evt.Recommendation = &rec
	}

	w.metrics.DangerAlerts.Inc()
	w.logger.Warn("danger episode started",
		"event_id", evt.ID,
		"hazard_ids", owners,
		"has_recommendation", evt.Recommendation != nil,
	)

	w.broker.Publish(evt)
	return evt, true
}

// Deliver labels evt with the reverse-geocoded address of its position and
// hands the alert to the notifier. It is a no-op without a notifier.
func (w *Watch) Deliver(ctx context.Context, evt domain.DangerEpisodeEvent) error {
	if w.notifier == nil {
		return nil
	}
	evt.LocationLabel = w.label(ctx, evt.Position)
	return w.notifier.Notify(ctx, NotificationFor(evt))
}

// enter updates episode memory and reports whether a new episode began.
func (w *Watch) enter(inside bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case inside && !w.alerted:
		w.alerted = true
		w.metrics.WatchAlerted.Set(1)
		return true
	case !inside && w.alerted:
		w.alerted = false
		w.metrics.WatchAlerted.Set(0)
		w.logger.Info("left all hazard buffers, danger watch re-armed")
	}
	return false
}

func (w *Watch) label(ctx context.Context, pos domain.Position) string {
	if w.geocoder == nil {
		return defaultLocationLabel
	}
	res, err := w.geocoder.ReverseGeocode(ctx, pos.Lat, pos.Lon)
	if err != nil {
		w.logger.Warn("reverse geocode failed, using default label", "error", err)
		return defaultLocationLabel
	}
	if label := strings.TrimSpace(res.FormattedAddress); label != "" {
		return label
	}
	return defaultLocationLabel
}

// NotificationFor renders the user-facing alert for an episode.
func NotificationFor(evt domain.DangerEpisodeEvent) domain.Notification {
	msg := "You are in a risk area!"
	if r := evt.Recommendation; r != nil {
		msg += fmt.Sprintf(" Nearest safe location: %s (%.2f km)", r.Location.Name, r.DistanceMeters/1000)
	}
	return domain.Notification{
		Severity:      alertSeverity,
		LocationLabel: evt.LocationLabel,
		Message:       msg,
	}
}
