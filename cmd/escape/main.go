package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-escape-service/internal/adapter/googlemaps"
	httpadapter "github.com/couchcryptid/storm-escape-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-escape-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-escape-service/internal/adapter/mapbox"
	"github.com/couchcryptid/storm-escape-service/internal/adapter/ratelimit"
	redisadapter "github.com/couchcryptid/storm-escape-service/internal/adapter/redis"
	"github.com/couchcryptid/storm-escape-service/internal/adapter/ws"
	"github.com/couchcryptid/storm-escape-service/internal/catalog"
	"github.com/couchcryptid/storm-escape-service/internal/config"
	"github.com/couchcryptid/storm-escape-service/internal/domain"
	"github.com/couchcryptid/storm-escape-service/internal/observability"
	"github.com/couchcryptid/storm-escape-service/internal/pipeline"
	"github.com/couchcryptid/storm-escape-service/internal/planner"
	"github.com/couchcryptid/storm-escape-service/internal/watch"
)

// readiness combines the probes of every optional dependency.
type readiness []func(ctx context.Context) error

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, check := range r {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	safe := domain.DefaultSafeLocations()
	if cfg.SafeLocationsFile != "" {
		safe, err = catalog.Load(cfg.SafeLocationsFile)
		if err != nil {
			logger.Error("failed to load safe locations", "path", cfg.SafeLocationsFile, "error", err)
			os.Exit(1)
		}
	}
	index := domain.NewHazardIndex(safe, domain.WithBufferRadius(cfg.BufferRadius))
	logger.Info("hazard index ready", "safe_locations", len(safe), "buffer_radius_m", cfg.BufferRadius)

	gateway, geocoder, err := newDirections(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to initialize directions provider", "error", err)
		os.Exit(1)
	}

	origins := ws.WithAllowedOrigins(cfg.AllowedOrigins)
	feed := ws.NewPositionFeed(cfg.PositionTimeout, cfg.PositionMaxAge, clockwork.NewRealClock(), logger, origins)
	hub := ws.NewHub(logger, metrics, origins)
	plans := planner.New(feed, index, gateway, hub, logger, metrics)

	var checks readiness
	var broker watch.EventBroker = watch.NewBroker()
	var redisBroker *redisadapter.Broker
	if cfg.RedisURL != "" {
		redisBroker, err = redisadapter.NewBroker(cfg.RedisURL, logger)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		broker = redisBroker
		checks = append(checks, redisBroker.Ping)
		logger.Info("danger episodes fan out over redis")
	}

	watchOpts := []watch.Option{}
	if geocoder != nil {
		watchOpts = append(watchOpts, watch.WithGeocoder(geocoder))
	}

	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
		feedP  *pipeline.Pipeline
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		feedP = pipeline.New(reader, pipeline.NewTransformer(logger), pipeline.NewIndexLoader(index, metrics),
			logger, metrics, cfg.BatchSize)
		watchOpts = append(watchOpts, watch.WithNotifier(writer))
		checks = append(checks, feedP.CheckReadiness)
	} else {
		logger.Info("kafka disabled; hazard index holds no reports until one is fed")
	}

	dangerWatch := watch.New(index, broker, logger, metrics, watchOpts...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, checks, httpadapter.Routes{
		Planner:   plans,
		Hazards:   index,
		Positions: feed,
		Events:    hub,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	goRun := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error(name+" error", "error", err)
			}
		}()
	}

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	goRun("danger watch", func(ctx context.Context) error { return dangerWatch.Run(ctx, feed) })
	goRun("episode relay", func(ctx context.Context) error {
		hub.RelayEpisodes(ctx, broker)
		return nil
	})
	if feedP != nil {
		goRun("hazard feed", feedP.Run)
	}
	if cfg.SafeLocationsReload != "" {
		reloader := catalog.NewReloader(cfg.SafeLocationsFile, index, logger)
		goRun("safe location reloader", func(ctx context.Context) error {
			return reloader.Run(ctx, cfg.SafeLocationsReload)
		})
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()

	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if redisBroker != nil {
		if err := redisBroker.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// newDirections builds the directions gateway for the configured provider,
// rate limited behind the route cache so cache hits spend no quota. The reverse geocoder is
// only available with a Mapbox token.
func newDirections(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (domain.DirectionsGateway, domain.ReverseGeocoder, error) {
	var geocoder domain.ReverseGeocoder
	var mb *mapbox.Client
	if cfg.MapboxToken != "" {
		mb = mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(mb, cfg.MapboxCacheSize, metrics)
	}

	var inner domain.DirectionsGateway
	switch cfg.DirectionsProvider {
	case config.ProviderGoogle:
		gm, err := googlemaps.NewClient(cfg.GoogleMapsAPIKey, cfg.MapboxTimeout, logger, metrics)
		if err != nil {
			return nil, nil, err
		}
		inner = gm
	default:
		if mb == nil {
			logger.Warn("MAPBOX_TOKEN is not set; directions requests will be rejected")
			mb = mapbox.NewClient("", cfg.MapboxTimeout, logger, metrics)
		}
		inner = mb
	}
	logger.Info("directions provider configured",
		"provider", cfg.DirectionsProvider,
		"rate_limit", cfg.DirectionsRateLimit,
		"cache_size", cfg.MapboxCacheSize,
	)

	limited := ratelimit.NewGateway(inner, cfg.DirectionsRateLimit, cfg.DirectionsBurst)
	return mapbox.NewCachedGateway(limited, cfg.MapboxCacheSize, metrics), geocoder, nil
}
