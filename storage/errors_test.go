package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundMapping(t *testing.T) {
	assert.ErrorIs(t, notFound(sql.ErrNoRows), ErrNotFound)

	other := errors.New("connection reset")
	assert.Equal(t, other, notFound(other))

	// Wrapped sentinel survives fmt.Errorf chains the repositories build.
	wrapped := fmt.Errorf("get document doc:x: %w", notFound(sql.ErrNoRows))
	assert.ErrorIs(t, wrapped, ErrNotFound)
}

func TestRunKey(t *testing.T) {
	assert.Equal(t, "abc-123", runKey("wf:abc-123"))
	assert.Equal(t, "abc-123", runKey("abc-123"))
}
