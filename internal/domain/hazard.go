package domain

import "time"

// DefaultBufferRadius is the exclusion radius, in meters, projected around a
// danger report. The same distance is used as the route proximity threshold.
const DefaultBufferRadius = 500.0

// Severity is the map-level hazard severity of a report.
type Severity string

const (
	SeverityNormal  Severity = "normal"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Category classifies what a report describes.
type Category string

const (
	CategoryFlood    Category = "flood"
	CategoryDisaster Category = "disaster"
	CategoryOther    Category = "other"
)

// HazardReport is a community observation of a hazard at a location.
// Reports are immutable once issued; a report with the same ID supersedes it.
type HazardReport struct {
	ID          string    `json:"id"`
	Position    Position  `json:"position"`
	Severity    Severity  `json:"severity"`
	Category    Category  `json:"category"`
	Description string    `json:"description,omitempty"`
	ReportedAt  time.Time `json:"reported_at,omitzero"`
}

// ProjectsBuffer reports whether the report blocks destinations and routes.
// Only danger reports do; warning and normal reports are informational.
func (r HazardReport) ProjectsBuffer() bool {
	return r.Severity == SeverityDanger
}

// LocationKind is the type of facility a safe location is.
type LocationKind string

const (
	KindEvacuationCenter LocationKind = "evacuation_center"
	KindShelter          LocationKind = "shelter"
	KindHospital         LocationKind = "hospital"
	KindFireStation      LocationKind = "fire_station"
)

// Valid reports whether k is a known facility kind.
func (k LocationKind) Valid() bool {
	switch k {
	case KindEvacuationCenter, KindShelter, KindHospital, KindFireStation:
		return true
	default:
		return false
	}
}

// SafeLocation is a designated evacuation destination.
type SafeLocation struct {
	ID       string       `json:"id" yaml:"id"`
	Position Position     `json:"position" yaml:"position"`
	Name     string       `json:"name" yaml:"name"`
	Kind     LocationKind `json:"kind" yaml:"kind"`
}

// HazardBuffer is the circular exclusion zone around a danger report.
type HazardBuffer struct {
	Center       Position `json:"center"`
	RadiusMeters float64  `json:"radius_meters"`
	Owner        string   `json:"owner"`
}

// Contains reports whether p lies inside the buffer, boundary included.
func (b HazardBuffer) Contains(p Position) bool {
	return Distance(b.Center, p) <= b.RadiusMeters
}
