package domain

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Snapshot is an immutable view of the hazard reports and safe locations at
// one point in time. All query methods are safe for concurrent use.
type Snapshot struct {
	version uint64
	radius  float64
	reports []HazardReport
	safe    []SafeLocation
}

// Version increases by one with every published mutation.
func (s *Snapshot) Version() uint64 { return s.version }

// BufferRadius returns the exclusion radius in meters.
func (s *Snapshot) BufferRadius() float64 { return s.radius }

// Reports returns a copy of all reports in insertion order.
func (s *Snapshot) Reports() []HazardReport { return slices.Clone(s.reports) }

// SafeLocations returns a copy of the full safe-location catalog.
func (s *Snapshot) SafeLocations() []SafeLocation { return slices.Clone(s.safe) }

// Buffers materializes one buffer per danger report.
func (s *Snapshot) Buffers() []HazardBuffer {
	out := make([]HazardBuffer, 0, len(s.reports))
	for _, r := range s.reports {
		if !r.ProjectsBuffer() {
			continue
		}
		out = append(out, HazardBuffer{Center: r.Position, RadiusMeters: s.radius, Owner: r.ID})
	}
	return out
}

// IsInDanger reports whether p lies within any hazard buffer.
// The same predicate decides whether a safe location is blocked.
func (s *Snapshot) IsInDanger(p Position) bool {
	for _, b := range s.Buffers() {
		if b.Contains(p) {
			return true
		}
	}
	return false
}

// BuffersContaining returns the owners of every buffer that contains p.
func (s *Snapshot) BuffersContaining(p Position) []string {
	var owners []string
	for _, b := range s.Buffers() {
		if b.Contains(p) {
			owners = append(owners, b.Owner)
		}
	}
	return owners
}

// UnblockedSafeLocations returns the catalog minus every location that is
// itself inside a buffer, preserving catalog order. An empty result means no
// safe destination is available.
func (s *Snapshot) UnblockedSafeLocations() []SafeLocation {
	buffers := s.Buffers()
	out := make([]SafeLocation, 0, len(s.safe))
	for _, loc := range s.safe {
		if !anyContains(buffers, loc.Position) {
			out = append(out, loc)
		}
	}
	return out
}

// RouteIntersections returns the owners of every buffer that any point of the
// geometry falls into, in buffer order and without duplicates.
func (s *Snapshot) RouteIntersections(geometry []Position) []string {
	var owners []string
	for _, b := range s.Buffers() {
		for _, p := range geometry {
			if b.Contains(p) {
				owners = append(owners, b.Owner)
				break
			}
		}
	}
	return owners
}

func anyContains(buffers []HazardBuffer, p Position) bool {
	for _, b := range buffers {
		if b.Contains(p) {
			return true
		}
	}
	return false
}

// IndexOption configures a HazardIndex.
type IndexOption func(*HazardIndex)

// WithBufferRadius overrides DefaultBufferRadius.
func WithBufferRadius(meters float64) IndexOption {
	return func(i *HazardIndex) {
		if meters > 0 {
			i.radius = meters
		}
	}
}

// HazardIndex owns the current hazard reports and safe-location catalog.
// Readers take a Snapshot; writers build a new snapshot and publish it whole.
type HazardIndex struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Snapshot]
	radius  float64
}

// NewHazardIndex creates an index with the given safe-location catalog and no reports.
func NewHazardIndex(safe []SafeLocation, opts ...IndexOption) *HazardIndex {
	idx := &HazardIndex{radius: DefaultBufferRadius}
	for _, opt := range opts {
		opt(idx)
	}
	idx.current.Store(&Snapshot{
		radius: idx.radius,
		safe:   slices.Clone(safe),
	})
	return idx
}

// Snapshot returns the currently published snapshot.
func (i *HazardIndex) Snapshot() *Snapshot {
	return i.current.Load()
}

// Upsert inserts reports, superseding any existing report with the same ID in
// place so insertion order stays stable. Returns the published snapshot.
func (i *HazardIndex) Upsert(reports ...HazardReport) *Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()

	cur := i.current.Load()
	next := slices.Clone(cur.reports)
	for _, r := range reports {
		if pos := slices.IndexFunc(next, func(e HazardReport) bool { return e.ID == r.ID }); pos >= 0 {
			next[pos] = r
			continue
		}
		next = append(next, r)
	}
	return i.publish(cur, next, cur.safe)
}

// Remove drops the reports with the given IDs. Unknown IDs are ignored.
func (i *HazardIndex) Remove(ids ...string) *Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()

	cur := i.current.Load()
	next := slices.DeleteFunc(slices.Clone(cur.reports), func(r HazardReport) bool {
		return slices.Contains(ids, r.ID)
	})
	return i.publish(cur, next, cur.safe)
}

// ReplaceSafeLocations swaps the safe-location catalog.
func (i *HazardIndex) ReplaceSafeLocations(locs []SafeLocation) *Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()

	cur := i.current.Load()
	return i.publish(cur, cur.reports, slices.Clone(locs))
}

func (i *HazardIndex) publish(cur *Snapshot, reports []HazardReport, safe []SafeLocation) *Snapshot {
	next := &Snapshot{
		version: cur.version + 1,
		radius:  cur.radius,
		reports: reports,
		safe:    safe,
	}
	i.current.Store(next)
	return next
}
