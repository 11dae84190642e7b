package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
	"github.com/MimeLyc/jobhunt-companion/internal/progress"
)

type ErrorType int

const (
	ErrTransport ErrorType = iota
	ErrNotFound
	ErrJobFailed
	ErrGaveUp
	ErrValidation
	ErrRetryLimit
	ErrUnknown
)

// RetryLimitMessage is what the user sees once retries are used up.
const RetryLimitMessage = "Maximum retry attempts reached. Please start over."

type Error struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrTransport:
		return "Transport"
	case ErrNotFound:
		return "NotFound"
	case ErrJobFailed:
		return "JobFailed"
	case ErrGaveUp:
		return "GaveUp"
	case ErrValidation:
		return "Validation"
	case ErrRetryLimit:
		return "RetryLimit"
	default:
		return "Unknown"
	}
}

// Advice is a user-facing hint for the error class.
func Advice(err error) string {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		return "Please review the error details and try again"
	}
	switch svcErr.Type {
	case ErrTransport:
		return "Please check that the analysis backend is running and reachable"
	case ErrNotFound:
		return "The backend no longer knows this job; please start over"
	case ErrJobFailed:
		return "The analysis failed; review the error and retry"
	case ErrGaveUp:
		return "Tracking stopped before the job finished; retry or start over"
	case ErrValidation:
		return "Please provide both a job description and a résumé"
	case ErrRetryLimit:
		return RetryLimitMessage
	default:
		return "Please review the error details and try again"
	}
}

// HTTPStatus maps an error onto the status the local API answers with.
func HTTPStatus(err error) int {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		return http.StatusInternalServerError
	}
	switch svcErr.Type {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrRetryLimit:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	case ErrJobFailed:
		return http.StatusUnprocessableEntity
	case ErrGaveUp:
		return http.StatusGatewayTimeout
	case ErrTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Type == errorType
	}
	return false
}

// Classify wraps err into the error taxonomy. A *Error is returned as is.
func Classify(err error, message string) *Error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}

	errorType := ErrUnknown
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, progress.ErrJobNotFound), backend.IsNotFound(err):
		errorType = ErrNotFound
	case progress.IsAbandoned(err):
		errorType = ErrGaveUp
	case errors.Is(err, backend.ErrNetwork), backend.IsTransient(err):
		errorType = ErrTransport
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnprocessableEntity {
			errorType = ErrValidation
		} else {
			errorType = ErrTransport
		}
	}
	return NewErrorWithCause(errorType, message, err)
}

// userMessage is the short text stored in state for the UI.
func userMessage(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, backend.ErrNetwork) {
		return "Network error. Please check your connection."
	}
	if errors.Is(err, progress.ErrJobNotFound) {
		return progress.ErrJobNotFound.Error()
	}
	if errors.Is(err, progress.ErrTakingTooLong) {
		return progress.ErrTakingTooLong.Error()
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	return err.Error()
}

// Message is the text the local API reports for err.
func Message(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) && svcErr.Cause != nil {
		if detail := userMessage(svcErr.Cause); detail != "" && detail != svcErr.Message {
			return svcErr.Message + ": " + detail
		}
	}
	return userMessage(err)
}
