package pipeline

import (
	"context"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
	"github.com/couchcryptid/storm-escape-service/internal/observability"
)

// IndexLoader applies changes to a HazardIndex. Consecutive upserts are
// published as one snapshot; a removal closes the run so order is preserved.
type IndexLoader struct {
	index   *domain.HazardIndex
	metrics *observability.Metrics
}

func NewIndexLoader(index *domain.HazardIndex, metrics *observability.Metrics) *IndexLoader {
	return &IndexLoader{index: index, metrics: metrics}
}

func (l *IndexLoader) LoadBatch(_ context.Context, changes []Change) error {
	var upserts []domain.HazardReport
	var removals []string

	flush := func() {
		if len(upserts) > 0 {
			l.index.Upsert(upserts...)
			upserts = upserts[:0]
		}
		if len(removals) > 0 {
			l.index.Remove(removals...)
			l.metrics.ReportsRemoved.Add(float64(len(removals)))
			removals = removals[:0]
		}
	}

	for _, c := range changes {
		switch {
		case c.Report != nil:
			if len(removals) > 0 {
				flush()
			}
			upserts = append(upserts, *c.Report)
		case c.RemoveID != "":
			if len(upserts) > 0 {
				flush()
			}
			removals = append(removals, c.RemoveID)
		}
	}
	flush()

	l.metrics.ActiveBuffers.Set(float64(len(l.index.Snapshot().Buffers())))
	return nil
}
