package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := New(CategoryDeploy, SeverityError, "release switch failed")
	assert.Equal(t, "deploy (error): release switch failed", e.Error())

	cause := stderrors.New("symlink: permission denied")
	wrapped := Wrap(cause, CategoryFileSystem, SeverityFatal, "cannot update current")
	assert.Equal(t, "filesystem (fatal): cannot update current: symlink: permission denied", wrapped.Error())
	assert.Equal(t, cause, stderrors.Unwrap(wrapped))
}

func TestRetryableClassification(t *testing.T) {
	transient := WrapRetryable(stderrors.New("timeout"), CategoryNetwork, SeverityError, "fetch failed")
	assert.True(t, IsRetryable(transient))
	assert.True(t, IsCategory(transient, CategoryNetwork))

	permanent := ValidationError("redirect target must be relative")
	assert.False(t, IsRetryable(permanent))
	assert.Equal(t, SeverityWarning, permanent.Severity)

	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.Equal(t, CategoryInternal, GetCategory(stderrors.New("plain")))
}

func TestWithContext(t *testing.T) {
	e := New(CategoryBuild, SeverityError, "build command exited non-zero").
		WithContext("exit_code", 2).
		WithContext("command", "cargo doc")

	require.NotNil(t, e.Context)
	assert.Equal(t, 2, e.Context["exit_code"])
	assert.Equal(t, "cargo doc", e.Context["command"])
}
