package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrIntegrity indicates an archive failed checksum verification
	ErrIntegrity = errors.New("integrity check failed")

	// ErrMissingEntity indicates an identifier has no offset index entry
	ErrMissingEntity = errors.New("missing entity")

	// ErrMalformedRecord indicates a flat-file line could not be parsed
	ErrMalformedRecord = errors.New("malformed record")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrStaleIndex indicates an index no longer matches its source file
	ErrStaleIndex = errors.New("stale index")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPermission indicates a permission error
	ErrPermission = errors.New("permission denied")

	// ErrDiskFull indicates insufficient disk space
	ErrDiskFull = errors.New("disk full")
)

// IsEntityScoped reports whether err only concerns a single entity.
// Such errors are recorded against the entity and the run continues;
// anything else is treated as an infrastructure failure.
func IsEntityScoped(err error) bool {
	return errors.Is(err, ErrMissingEntity) || errors.Is(err, ErrMalformedRecord)
}
