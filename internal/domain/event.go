package domain

import (
	"bytes"
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the hazard report topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// IsTombstone reports whether the message retracts the report named by its key.
// A blank key names no report.
func (e RawEvent) IsTombstone() bool {
	return len(e.Value) == 0 && len(bytes.TrimSpace(e.Key)) > 0
}

// DangerEpisodeEvent is raised once when the user enters a hazard buffer.
// Recommendation is nil when no unblocked safe location exists.
type DangerEpisodeEvent struct {
	ID             string          `json:"id"`
	Position       Position        `json:"position"`
	HazardIDs      []string        `json:"hazard_ids"`
	LocationLabel  string          `json:"location_label"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}
