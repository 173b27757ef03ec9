package attendance

import "errors"

var (
	// ErrMalformedRow marks an ingestion row that fails shape validation.
	ErrMalformedRow = errors.New("malformed row")
	// ErrUnknownBadge is returned when no student carries the scanned badge.
	ErrUnknownBadge = errors.New("unknown badge")
	// ErrInactiveStudent is returned when the badge maps to a deactivated student.
	ErrInactiveStudent = errors.New("inactive student")
	ErrUnknownStudent  = errors.New("unknown student")
	ErrUnknownPeriod   = errors.New("unknown period")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidRecord   = errors.New("invalid record")
	ErrForbidden       = errors.New("forbidden")
)
