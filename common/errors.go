package common

import "errors"

// Result codes returned by the executor surface and, internally, by the
// B+-tree engine. Success is represented by a nil error; every other
// outcome is one of the sentinels below so callers can use errors.Is.
var (
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrNotFound        = errors.New("not found")
	ErrStringTooLong   = errors.New("string too long")
	ErrTableFull       = errors.New("table full")
	ErrDiskError       = errors.New("disk error")
	ErrPageOutOfBounds = errors.New("page out of bounds")
	ErrCorrupt         = errors.New("corrupt")

	ErrClosed = errors.New("table closed")
)
