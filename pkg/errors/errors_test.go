package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrors_ClassifyThroughWrapping(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := fmt.Errorf("fetching candidate: %w", NewTransportError("download failed", "https://x/a.jpg", 502, cause))

	assert.True(t, IsTransport(err))
	assert.False(t, IsFormat(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeTransport, CodeOf(err))
	assert.Equal(t, "fetching candidate: download failed: connection reset", err.Error())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeFormat, CodeOf(NewFormatError("html", "text/html", nil)))
	assert.Equal(t, CodeConstraint, CodeOf(NewConstraintViolation("small", "min_dimension", 10)))
	assert.Equal(t, CodeQuotaExceeded, CodeOf(NewQuotaExceededError("q", 429, nil)))
	assert.Equal(t, CodePersistence, CodeOf(NewPersistenceError("patch", "rec1", "update", nil)))
	assert.Equal(t, CodeConfiguration, CodeOf(NewConfigurationError("missing", "X")))
	assert.Equal(t, CodeCache, CodeOf(NewCacheError("get", "get", "k", nil)))
	assert.Equal(t, CodeAvatarError, CodeOf(stderrors.New("plain")))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsQuota(NewQuotaExceededError("q", 403, nil)))
	assert.True(t, IsPersistence(NewPersistenceError("patch", "rec1", "update", nil)))
	assert.True(t, IsConstraint(NewConstraintViolation("wide", "aspect_ratio", 3.0)))
	assert.True(t, IsConfiguration(NewConfigurationError("missing", "X")))
	assert.False(t, IsQuota(nil))
}
