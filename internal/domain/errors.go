package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUnsupportedPlan    = errors.New("unsupported plan")
	ErrUnknownJobKind     = errors.New("unknown job kind")
	ErrInvalidDateKey     = errors.New("invalid date key")
	ErrJobTerminal        = errors.New("job already terminal")
	ErrInvalidTransition  = errors.New("invalid job transition")
	ErrGenerationFailure  = errors.New("generation failure")
	ErrConsistencyFailure = errors.New("generated resource not confirmed")
	ErrQueueUnavailable   = errors.New("job queue unavailable")
)
