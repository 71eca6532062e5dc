package safeinterval

import "errors"

var (
	// Registration errors.
	ErrNilCallable   = errors.New("safeinterval: nil callable")
	ErrInvalidPeriod = errors.New("safeinterval: period must be positive")
	ErrInvalidSpec   = errors.New("safeinterval: invalid cron spec")

	// Conflict errors.
	ErrKindConflict = errors.New("safeinterval: schedule kind conflict for identity")

	// State errors.
	ErrClosed = errors.New("safeinterval: registrar closed")
)
