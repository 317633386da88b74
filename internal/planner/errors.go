package planner

import "github.com/couchcryptid/storm-escape-service/internal/domain"

// Re-exported so callers of the planner need not import domain for the
// session-level errors.
var (
	ErrAlreadyPlanning = domain.ErrAlreadyPlanning
	ErrPlanCleared     = domain.ErrPlanCleared
)
