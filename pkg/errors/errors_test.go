package errors

import (
	"context"
	"io/fs"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapStorageErrorKeepsSentinelAndCause(t *testing.T) {
	tests := []struct {
		code      string
		sentinel  error
		retryable bool
	}{
		{CodeReadFailed, ErrStorageReadFailed, false},
		{CodeWriteFailed, ErrStorageWriteFailed, false},
		{CodeConnectionFailed, ErrStorageConnectionFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := WrapStorageError(fs.ErrNotExist, tt.code, "failed")
			assert.ErrorIs(t, err, tt.sentinel)
			assert.ErrorIs(t, err, fs.ErrNotExist)
			assert.Equal(t, ErrorTypeStorage, err.Type)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, http.StatusBadGateway, HTTPStatusOf(err))
		})
	}
}

func TestWrapStorageErrorUnknownCode(t *testing.T) {
	err := WrapStorageError(fs.ErrClosed, "CLOSE_FAILED", "failed to close")
	assert.ErrorIs(t, err, fs.ErrClosed)
	assert.NotErrorIs(t, err, ErrStorageReadFailed)

	err = WrapStorageError(nil, CodeReadFailed, "failed")
	assert.ErrorIs(t, err, ErrStorageReadFailed)
}

func TestNewInferenceErrorKeepsCause(t *testing.T) {
	err := NewInferenceError(2, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrInference)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, err.Context["step"])

	assert.ErrorIs(t, NewInferenceError(0, nil), ErrInference)
}

func TestNewArtifactInvalidErrorKeepsCause(t *testing.T) {
	err := NewArtifactInvalidError("model.json", fs.ErrInvalid)
	assert.ErrorIs(t, err, ErrArtifactInvalid)
	assert.ErrorIs(t, err, fs.ErrInvalid)
	assert.True(t, IsFatal(err))
}
