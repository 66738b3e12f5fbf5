package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the gateway.
var (
	// ErrRateLimited is returned when the rate limiter blocks a request before it is sent.
	ErrRateLimited = errors.New("request blocked: rate limit critical")

	// ErrBodyTooLarge is returned when a response exceeds the configured size cap.
	ErrBodyTooLarge = errors.New("response body too large")
)

// ErrorClass represents a classification of gateway failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and locally blocked requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents unreadable response bodies.
	ErrorClassDecode ErrorClass = "decode"
)

// Error is a failed catalog request.
type Error struct {
	StatusCode int
	Class      ErrorClass
	Message    string

	// Remote is the message the catalog service put in its error body, if any.
	Remote string

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// RemoteMessage returns the server-provided message.
func (e *Error) RemoteMessage() string {
	return e.Remote
}

// remoteMessage extracts a human readable message from an error body of the
// form {"message": "..."} or {"error": "..."}. Non-JSON bodies yield "".
func remoteMessage(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}

	// "error" is either a string or an object with its own message.
	var s string
	if err := json.Unmarshal(payload.Error, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload.Error, &nested); err == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}
