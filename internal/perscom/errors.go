package perscom

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	// ErrUnknownOutcome is returned for a submission status other than
	// Accepted or Denied.
	ErrUnknownOutcome = errors.New("perscom: unknown submission outcome")

	// ErrUnknownResourceType is returned when a delete names a collection
	// the portal does not manage.
	ErrUnknownResourceType = errors.New("perscom: unknown resource type")

	// ErrInvalidRecord is returned when a record payload lacks the field
	// its kind requires.
	ErrInvalidRecord = errors.New("perscom: invalid record")
)

// APIError is a non-2xx response from PERSCOM. Body keeps the raw error
// document for diagnostics; Message is the human readable part of it.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("perscom: %s %s: status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("perscom: %s %s: status %d", e.Method, e.Endpoint, e.StatusCode)
}

// Retryable reports whether the failure is a server-side fault.
func (e *APIError) Retryable() bool { return e.StatusCode >= 500 }

// IsNotFound reports whether err is a PERSCOM 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

func newAPIError(method, endpoint string, status int, body []byte) *APIError {
	const maxBody = 4 << 10
	raw := string(body)
	if len(raw) > maxBody {
		raw = raw[:maxBody] + "...(truncated)"
	}
	return &APIError{
		Method:     method,
		Endpoint:   endpoint,
		StatusCode: status,
		Message:    errorMessage(body),
		Body:       raw,
	}
}

// errorMessage pulls the message out of the shapes PERSCOM uses for errors:
// {"error":{"message":...}}, {"message":...} or {"error":"..."}.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"error.message", "message", "error"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}
