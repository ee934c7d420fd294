package history

import "errors"

// Caller contract violations. These are raised before any statement is
// built or executed.
var (
	// ErrNoEntityIDs is returned when a query is attempted with an empty
	// entity selection. Reinterpreting "no entities" as "all entities" is
	// the silent bug this guards against.
	ErrNoEntityIDs = errors.New("at least one entity id is required")

	// ErrFilterWithEntityIDs is returned when an entity filter is combined
	// with an explicit entity-id list; the two selection mechanisms are
	// mutually exclusive.
	ErrFilterWithEntityIDs = errors.New("cannot combine an entity filter with explicit entity ids")

	// ErrInvalidLimit is returned for non-positive row limits where a limit
	// is required.
	ErrInvalidLimit = errors.New("limit must be positive")
)
