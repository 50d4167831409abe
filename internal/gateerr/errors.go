// Package gateerr defines the error taxonomy shared by every gateway component.
//
// A failed login is not an error: credential checks return a result with
// Authorized=false. The sentinels below cover everything else and are matched
// with errors.Is after domain services wrap store-level causes.
package gateerr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when a gated operation is called without a
	// valid session of the required kind.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned when a character, level, or shard is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a create collides with an existing record.
	ErrConflict = errors.New("conflict")
	// ErrStoreUnavailable wraps any backing store or credential check failure.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrProtocol is returned for malformed or unrecognised input.
	ErrProtocol = errors.New("protocol error")
	// ErrCharacterCap is returned when a player already owns the maximum number
	// of characters. It matches ErrConflict.
	ErrCharacterCap = fmt.Errorf("character limit reached: %w", ErrConflict)
)

// Store wraps a backing store failure so that it matches ErrStoreUnavailable
// while keeping the cause available for logging.
//
// Precondition: cause must be non-nil.
func Store(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, cause)
}

// Protocolf builds an ErrProtocol with a formatted detail message.
func Protocolf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}
