package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_escape"

// Metrics holds the Prometheus counters, histograms, and gauges for the escape service.
type Metrics struct {
	// Hazard feed metrics.
	ReportsConsumed         prometheus.Counter
	ReportsRemoved          prometheus.Counter
	ParseErrors             prometheus.Counter
	FeedRunning             prometheus.Gauge
	ActiveBuffers           prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Planner metrics.
	PlanOutcomes *prometheus.CounterVec // labels: outcome={completed,degraded,position_unavailable,no_safe_destination,route_provider_error,cleared,rejected}
	PlanDuration prometheus.Histogram

	// Directions metrics.
	DirectionsRequests    *prometheus.CounterVec   // labels: provider, outcome={success,error,empty}
	DirectionsCache       *prometheus.CounterVec   // labels: result={hit,miss}
	DirectionsAPIDuration *prometheus.HistogramVec // labels: provider

	// Geocoding metrics (alert location labels).
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}

	// Danger watch metrics.
	PositionUpdates prometheus.Counter
	DangerAlerts    prometheus.Counter
	WatchAlerted    prometheus.Gauge

	EventClients prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ReportsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hazard_reports_consumed_total",
			Help:      "Total hazard report messages read from the feed.",
		}),
		ReportsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hazard_reports_removed_total",
			Help:      "Total hazard reports removed by tombstone.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hazard_report_parse_errors_total",
			Help:      "Total hazard report messages that could not be parsed.",
		}),
		FeedRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hazard_feed_running",
			Help:      "1 when the hazard feed is active, 0 when shut down.",
		}),
		ActiveBuffers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hazard_buffers_active",
			Help:      "Number of danger reports currently projecting a buffer.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hazard_batch_size",
			Help:      "Number of messages per batch read from the hazard feed.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hazard_batch_processing_duration_seconds",
			Help:      "Duration of applying one hazard feed batch to the index.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PlanOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_outcomes_total",
			Help:      "Escape plans by terminal outcome.",
		}, []string{"outcome"}),
		PlanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_duration_seconds",
			Help:      "Time from plan start to a terminal state.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		DirectionsRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directions_requests_total",
			Help:      "Directions API requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		DirectionsCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directions_cache_total",
			Help:      "Directions cache lookups by result.",
		}, []string{"result"}),
		DirectionsAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "directions_api_duration_seconds",
			Help:      "Directions API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Reverse geocoding cache lookups by result.",
		}, []string{"result"}),
		PositionUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_updates_total",
			Help:      "Position fixes observed by the danger watch.",
		}),
		DangerAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "danger_alerts_total",
			Help:      "Danger episodes raised by the danger watch.",
		}),
		WatchAlerted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "danger_watch_alerted",
			Help:      "1 while the tracked position is inside a hazard buffer.",
		}),
		EventClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_clients_connected",
			Help:      "Map clients connected to the event stream.",
		}),
	}

	prometheus.MustRegister(
		m.ReportsConsumed,
		m.ReportsRemoved,
		m.ParseErrors,
		m.FeedRunning,
		m.ActiveBuffers,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.PlanOutcomes,
		m.PlanDuration,
		m.DirectionsRequests,
		m.DirectionsCache,
		m.DirectionsAPIDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.PositionUpdates,
		m.DangerAlerts,
		m.WatchAlerted,
		m.EventClients,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ReportsConsumed:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "hazard_reports_consumed_total"}),
		ReportsRemoved:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "hazard_reports_removed_total"}),
		ParseErrors:             prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "hazard_report_parse_errors_total"}),
		FeedRunning:             prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "hazard_feed_running"}),
		ActiveBuffers:           prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "hazard_buffers_active"}),
		BatchSize:               prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "hazard_batch_size"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "hazard_batch_processing_duration_seconds"}),
		PlanOutcomes:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "plan_outcomes_total"}, []string{"outcome"}),
		PlanDuration:            prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "plan_duration_seconds"}),
		DirectionsRequests:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "directions_requests_total"}, []string{"provider", "outcome"}),
		DirectionsCache:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "directions_cache_total"}, []string{"result"}),
		DirectionsAPIDuration:   prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "directions_api_duration_seconds"}, []string{"provider"}),
		GeocodeRequests:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "geocode_requests_total"}, []string{"outcome"}),
		GeocodeCache:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "geocode_cache_total"}, []string{"result"}),
		PositionUpdates:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "position_updates_total"}),
		DangerAlerts:            prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "danger_alerts_total"}),
		WatchAlerted:            prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "danger_watch_alerted"}),
		EventClients:            prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "event_clients_connected"}),
	}
}
