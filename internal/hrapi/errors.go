package hrapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized marks a rejected or expired session
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound marks a missing backend resource
	ErrNotFound = errors.New("not found")
)

// APIError is a non-2xx backend response
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: strings.TrimSpace(string(body))}

	var parsed struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		e.Message = parsed.Message
		if e.Message == "" && len(parsed.Error) > 0 {
			e.Message = errorField(parsed.Error)
		}
	}
	return e
}

// errorField accepts both {"error": "text"} and {"error": {"message": "text"}}.
func errorField(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Message
	}
	return ""
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, msg)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// UserMessage builds the text shown to an operator for a failed call: the
// server error body when there is one, the transport error otherwise.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Message != "":
			return apiErr.Message
		case apiErr.Body != "":
			return apiErr.Body
		default:
			return http.StatusText(apiErr.StatusCode)
		}
	}
	return err.Error()
}
