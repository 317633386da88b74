package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
)

// Change is one mutation of the hazard index: an upsert or a removal by ID.
type Change struct {
	Report   *domain.HazardReport
	RemoveID string
}

// ReportTransformer implements Transformer for hazard report messages.
// A tombstone (empty value, report ID as key) becomes a removal.
type ReportTransformer struct {
	logger *slog.Logger
}

func NewTransformer(logger *slog.Logger) *ReportTransformer {
	return &ReportTransformer{logger: logger}
}

func (t *ReportTransformer) Transform(_ context.Context, raw domain.RawEvent) (Change, error) {
	if raw.IsTombstone() {
		return Change{RemoveID: strings.TrimSpace(string(raw.Key))}, nil
	}

	report, err := domain.ParseHazardReport(raw)
	if err != nil {
		return Change{}, err
	}
	return Change{Report: &report}, nil
}
