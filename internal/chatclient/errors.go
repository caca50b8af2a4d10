package chatclient

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	// ErrChatDisabled means the server refuses chat for this conversation.
	ErrChatDisabled = errors.New("chat disabled for this request")
	// ErrReconnectThrottled is returned when reconnect is requested faster than the limiter allows.
	ErrReconnectThrottled = errors.New("reconnect throttled")
	// ErrNoConversation is returned by operations that need an active conversation.
	ErrNoConversation = errors.New("no active conversation")
	// ErrUnrecognizedPayload marks a stream event whose shape is not a message or batch.
	ErrUnrecognizedPayload = errors.New("unrecognized stream payload")
)

// ValidationError rejects input before any request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// APIError is a non-2xx response from the chat API.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("chat api: status %d: %s", e.StatusCode, e.Message)
}

// IsPermissionDenied reports whether err carries an HTTP 403 from the chat API.
func IsPermissionDenied(err error) bool {
	var se *APIError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusForbidden
	}
	return errors.Is(err, ErrChatDisabled)
}
