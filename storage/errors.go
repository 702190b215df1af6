package storage

import (
	"database/sql"
	"errors"
)

// Common storage errors.
var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTransition is returned when a stage run status change is
	// not a legal transition.
	ErrInvalidTransition = errors.New("invalid stage transition")
)

// notFound maps sql.ErrNoRows onto the package sentinel so callers can use
// errors.Is(err, storage.ErrNotFound) regardless of the underlying driver.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
