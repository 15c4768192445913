package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorCollectsFields(t *testing.T) {
	ve := &ValidationError{}
	require.NoError(t, ve.OrNil())

	ve.Add("ownerId", "is required")
	ve.Add("docType", "must be one of: receipt bank_statement")

	err := ve.OrNil()
	require.Error(t, err)
	assert.Equal(t, "validation failed: ownerId is required; docType must be one of: receipt bank_statement", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidInput))

	wrapped := fmt.Errorf("submit: %w", err)
	got, ok := AsValidationError(wrapped)
	require.True(t, ok)
	assert.Len(t, got.Fields, 2)
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewAppError("store", "load fingerprints", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "store: load fingerprints: boom", err.Error())
}

func TestRedactKVs(t *testing.T) {
	out := redactKVs([]interface{}{"owner", "u1", "redis_password", "hunter2", "odd"})
	assert.Equal(t, []interface{}{"owner", "u1", "redis_password", "[REDACTED]", "odd"}, out)
}
