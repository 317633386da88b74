package catalog

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
)

// Replacer receives a freshly loaded catalog. *domain.HazardIndex implements it.
type Replacer interface {
	ReplaceSafeLocations(locs []domain.SafeLocation) *domain.Snapshot
}

// Reloader re-reads the catalog file and swaps it into the index. A file
// that fails to load leaves the current catalog in place.
type Reloader struct {
	path   string
	target Replacer
	logger *slog.Logger
}

func NewReloader(path string, target Replacer, logger *slog.Logger) *Reloader {
	return &Reloader{path: path, target: target, logger: logger}
}

// Reload loads the file once and publishes it.
func (r *Reloader) Reload() error {
	locs, err := Load(r.path)
	if err != nil {
		r.logger.Error("safe location reload failed", "path", r.path, "error", err)
		return err
	}
	snap := r.target.ReplaceSafeLocations(locs)
	r.logger.Info("safe locations reloaded", "path", r.path, "count", len(locs), "version", snap.Version())
	return nil
}

// Run reloads on the standard cron schedule until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { _ = r.Reload() }); err != nil {
		return err
	}
	c.Start()
	r.logger.Info("safe location reload scheduled", "schedule", schedule)

	<-ctx.Done()
	// wait for a reload in progress
	<-c.Stop().Done()
	return nil
}
