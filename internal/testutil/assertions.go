// Package testutil provides memory doubles and assertions for ABI tests.
package testutil

import (
	"encoding/json"
	"errors"
	"testing"

	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertBalanced asserts that every block in mem was released exactly once.
func AssertBalanced(t *testing.T, mem *TrackingMemory, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Empty(t, mem.Leaks(), msgAndArgs...)
	assert.Empty(t, mem.BadFrees(), msgAndArgs...)
}

// RequireNativeError asserts err is a *errors.NativeCallError carrying message.
func RequireNativeError(t *testing.T, err error, message string) *abierrors.NativeCallError {
	t.Helper()
	var callErr *abierrors.NativeCallError
	require.True(t, errors.As(err, &callErr), "expected NativeCallError, got %v", err)
	assert.Equal(t, message, callErr.Message)
	return callErr
}

// AssertJSONEqual compares two JSON strings for equality, ignoring formatting
func AssertJSONEqual(t *testing.T, expected, actual string, msgAndArgs ...interface{}) {
	t.Helper()

	var expectedJSON, actualJSON interface{}
	require.NoError(t, json.Unmarshal([]byte(expected), &expectedJSON), "expected JSON is invalid")
	require.NoError(t, json.Unmarshal([]byte(actual), &actualJSON), "actual JSON is invalid")

	assert.Equal(t, expectedJSON, actualJSON, msgAndArgs...)
}
