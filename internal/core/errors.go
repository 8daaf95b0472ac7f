package core

import "errors"

// Structural failures. Row-level problems are reported as RowError values
// and never through these.
var (
	ErrMalformedFile       = errors.New("malformed file")
	ErrTooManyRows         = errors.New("too many rows")
	ErrSessionNotFound     = errors.New("upload session not found")
	ErrSessionExpired      = errors.New("upload session expired")
	ErrSessionKindMismatch = errors.New("upload session kind mismatch")
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	ErrUnknownKind         = errors.New("unknown kind")
	ErrTenantRequired      = errors.New("tenant required")
	ErrStoreUnavailable    = errors.New("record store unavailable")
	ErrTooManyUploads      = errors.New("too many concurrent uploads, please try again later")
	ErrQueueFull           = errors.New("recalculation queue full")
	ErrNoFile              = errors.New("no file provided")
	ErrInvalidParameter    = errors.New("invalid parameter")
)
