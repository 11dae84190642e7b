package service

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
	"github.com/MimeLyc/jobhunt-companion/internal/progress"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   ErrorType
		status int
	}{
		{"network", fmt.Errorf("%w: refused", backend.ErrNetwork), ErrTransport, http.StatusBadGateway},
		{"server error", &backend.APIError{StatusCode: 500, Message: "x"}, ErrTransport, http.StatusBadGateway},
		{"not found", &backend.APIError{StatusCode: 404, Message: "x"}, ErrNotFound, http.StatusNotFound},
		{"bad request", &backend.APIError{StatusCode: 422, Message: "x"}, ErrValidation, http.StatusBadRequest},
		{"gave up not found", &progress.AbandonedError{Cause: progress.ErrJobNotFound}, ErrNotFound, http.StatusNotFound},
		{"gave up slow", &progress.AbandonedError{Cause: progress.ErrTakingTooLong}, ErrGaveUp, http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), ErrUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, "msg")
			assert.Equal(t, tt.want, got.Type)
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.status, HTTPStatus(got))
			assert.NotEmpty(t, Advice(got))
		})
	}
}

func TestClassify_KeepsServiceErrors(t *testing.T) {
	orig := NewError(ErrRetryLimit, RetryLimitMessage)
	assert.Same(t, orig, Classify(fmt.Errorf("wrapped: %w", orig), "other"))
	assert.Equal(t, http.StatusConflict, HTTPStatus(orig))
	assert.Equal(t, RetryLimitMessage, Advice(orig))
}

func TestError_Format(t *testing.T) {
	err := NewErrorWithCause(ErrJobFailed, "analysis failed", errors.New("agent2 crashed")).WithContext("id", "wf-1")
	assert.Equal(t, "[JobFailed] analysis failed | context: id=wf-1 | cause: agent2 crashed", err.Error())
	assert.Equal(t, "RetryLimit", ErrRetryLimit.String())
	assert.Equal(t, "Unknown", ErrorType(99).String())
}

func TestRetryCounter(t *testing.T) {
	r := NewRetryCounter(0)
	assert.Equal(t, 3, r.Limit())
	for i := 0; i < 3; i++ {
		assert.NoError(t, r.Acquire())
	}
	err := r.Acquire()
	assert.True(t, IsErrorType(err, ErrRetryLimit))
	assert.Equal(t, 3, r.Count())
	r.Reset()
	assert.Equal(t, 0, r.Count())
}

func TestMessage(t *testing.T) {
	wrapped := Classify(&backend.APIError{StatusCode: 500, Message: "agent crashed"}, "Failed to start workflow")
	assert.Equal(t, "Failed to start workflow: agent crashed", Message(wrapped))
	assert.Equal(t, RetryLimitMessage, Message(NewError(ErrRetryLimit, RetryLimitMessage)))
	assert.Equal(t, "plain", Message(errors.New("plain")))
}
