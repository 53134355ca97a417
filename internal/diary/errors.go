package diary

import "errors"

var (
	// ErrMissingIdentity means the session context lacks a person, school
	// or group id. The service cannot be constructed without them.
	ErrMissingIdentity = errors.New("diary: person, school or group id missing from context")

	// ErrInvalidQuarter is returned for quarter numbers outside 1..4.
	ErrInvalidQuarter = errors.New("diary: quarter must be between 1 and 4")

	// ErrInvalidCount is returned for a non-positive number of marks.
	ErrInvalidCount = errors.New("diary: count must be positive")

	// ErrInvalidRange is returned when an end date precedes its start date.
	ErrInvalidRange = errors.New("diary: end date is before start date")
)
