package planner

import (
	"slices"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
)

// Selection is the route chosen from a set of candidates.
type Selection struct {
	Route         domain.RouteCandidate
	Degraded      bool
	Intersections []string // danger reports the chosen route passes near, empty unless degraded
}

// SelectRoute walks candidates in provider rank order and picks the first one
// that passes near no danger report. When every candidate does, the top-ranked
// one is returned marked degraded. candidates must not be empty.
func SelectRoute(candidates []domain.RouteCandidate, snap *domain.Snapshot) Selection {
	ranked := slices.Clone(candidates)
	slices.SortStableFunc(ranked, func(a, b domain.RouteCandidate) int { return a.Rank - b.Rank })

	for _, c := range ranked {
		if len(snap.RouteIntersections(c.Geometry)) == 0 {
			return Selection{Route: c}
		}
	}

	top := ranked[0]
	return Selection{
		Route:         top,
		Degraded:      true,
		Intersections: snap.RouteIntersections(top.Geometry),
	}
}
