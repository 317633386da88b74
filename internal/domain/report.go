package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidReport is returned for reports that cannot be placed on the map.
var ErrInvalidReport = errors.New("invalid hazard report")

// RawHazardReport is the JSON shape published by the reporting surface.
type RawHazardReport struct {
	ID          string   `json:"id"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	Severity    string   `json:"severity"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	ReportedAt  string   `json:"reported_at"`
}

// ParseHazardReport deserializes a RawEvent's value into a HazardReport.
// The report ID falls back to the message key, then to a generated ID.
func ParseHazardReport(raw RawEvent) (HazardReport, error) {
	var rec RawHazardReport
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return HazardReport{}, fmt.Errorf("parse hazard report: %w", err)
	}

	if rec.Lat == nil || rec.Lng == nil {
		return HazardReport{}, fmt.Errorf("%w: missing coordinates", ErrInvalidReport)
	}
	pos := Position{Lat: *rec.Lat, Lon: *rec.Lng}
	if !pos.Valid() {
		return HazardReport{}, fmt.Errorf("%w: coordinates out of range (%f, %f)", ErrInvalidReport, pos.Lat, pos.Lon)
	}

	severity, ok := normalizeSeverity(rec.Severity)
	if !ok {
		return HazardReport{}, fmt.Errorf("%w: unknown severity %q", ErrInvalidReport, rec.Severity)
	}
	category := normalizeCategory(rec.Type)
	reportedAt := parseReportedAt(rec.ReportedAt, raw.Timestamp)

	id := strings.TrimSpace(rec.ID)
	if id == "" {
		id = strings.TrimSpace(string(raw.Key))
	}
	if id == "" {
		id = generateID(category, pos, reportedAt)
	}

	return HazardReport{
		ID:          id,
		Position:    pos,
		Severity:    severity,
		Category:    category,
		Description: strings.TrimSpace(rec.Description),
		ReportedAt:  reportedAt,
	}, nil
}

// normalizeSeverity accepts the map scale as-is and folds the report-form
// scale onto it.
func normalizeSeverity(value string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "normal", "low":
		return SeverityNormal, true
	case "warning", "moderate":
		return SeverityWarning, true
	case "danger", "high", "critical":
		return SeverityDanger, true
	default:
		return "", false
	}
}

func normalizeCategory(value string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(value))) {
	case CategoryFlood:
		return CategoryFlood
	case CategoryDisaster:
		return CategoryDisaster
	default:
		return CategoryOther
	}
}

// parseReportedAt prefers the report's own RFC 3339 timestamp, then the
// message timestamp, then the package clock.
func parseReportedAt(value string, fallback time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(value)); err == nil {
		return t.UTC()
	}
	if !fallback.IsZero() {
		return fallback.UTC()
	}
	return clock.Now().UTC()
}

// generateID produces a deterministic ID from the report's key fields, so the
// same observation replayed twice supersedes itself.
func generateID(category Category, pos Position, reportedAt time.Time) string {
	input := fmt.Sprintf("%s|%.5f|%.5f|%s", category, pos.Lat, pos.Lon, reportedAt.Format(time.RFC3339))
	hash := sha256.Sum256([]byte(input))
	return string(category) + "-" + hex.EncodeToString(hash[:8])
}
