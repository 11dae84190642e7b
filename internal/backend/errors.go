package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNetwork marks requests that never got a response.
	ErrNetwork = errors.New("network error, please check your connection")
	// ErrStreamUnsupported is returned for job kinds without a push endpoint.
	ErrStreamUnsupported = errors.New("progress stream not available")
)

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// newAPIError reads the FastAPI-style {"detail": ...} or {"error": ...} body.
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  json.RawMessage `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		msg = rawMessageText(payload.Detail)
		if msg == "" {
			msg = rawMessageText(payload.Error)
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = "An error occurred"
	}
	return &APIError{StatusCode: status, Message: msg}
}

func rawMessageText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	// validation errors come back as a list of objects
	return string(raw)
}
