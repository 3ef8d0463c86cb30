package pharma

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransientWrapping(t *testing.T) {
	t.Parallel()

	base := errors.New("connection reset")
	err := Transient(base)
	require.True(t, IsTransient(err))
	require.ErrorIs(t, err, base)

	wrapped := fmt.Errorf("fetch detail: %w", err)
	require.True(t, IsTransient(wrapped))
	require.False(t, IsExtraction(wrapped))
}

func TestTransientNil(t *testing.T) {
	t.Parallel()

	require.NoError(t, Transient(nil))
}

func TestExtractionError(t *testing.T) {
	t.Parallel()

	err := &ExtractionError{URL: "https://example.com/p/1", Reason: "missing product name"}
	require.True(t, IsExtraction(err))
	require.False(t, IsTransient(err))
	require.Contains(t, err.Error(), "missing product name")
}

func TestPersistenceError(t *testing.T) {
	t.Parallel()

	base := errors.New("pool closed")
	err := &PersistenceError{Op: "upsert product", Err: base}
	require.True(t, IsPersistence(err))
	require.ErrorIs(t, err, base)

	wrapped := fmt.Errorf("worker: %w", err)
	require.True(t, IsPersistence(wrapped))
}

func TestNotFoundIsNotTransient(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("fetch detail: %w", ErrNotFound)
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, IsTransient(err))
}
