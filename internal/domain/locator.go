package domain

// Recommendation is a suggested safe destination and how far away it is.
type Recommendation struct {
	Location       SafeLocation `json:"location"`
	DistanceMeters float64      `json:"distance_meters"`
}

// Nearest selects the candidate closest to origin. Ties go to the candidate
// that appears first. An empty candidate set yields ErrNoSafeDestination.
//
// Callers pass Snapshot.UnblockedSafeLocations so blocked locations are never
// considered.
func Nearest(origin Position, candidates []SafeLocation) (Recommendation, error) {
	if len(candidates) == 0 {
		return Recommendation{}, ErrNoSafeDestination
	}

	best := Recommendation{Location: candidates[0], DistanceMeters: Distance(origin, candidates[0].Position)}
	for _, c := range candidates[1:] {
		if d := Distance(origin, c.Position); d < best.DistanceMeters {
			best = Recommendation{Location: c, DistanceMeters: d}
		}
	}
	return best, nil
}
