package catalog

import "errors"

// DefaultErrorMessage is shown when a failed fetch carries no message at all.
const DefaultErrorMessage = "Failed to load products"

// RemoteMessager is implemented by errors that carry a message sent by the
// catalog service itself.
type RemoteMessager interface {
	RemoteMessage() string
}

// ErrorMessage returns the most specific message for a failed fetch: the
// remote-provided message, then the error text, then DefaultErrorMessage.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var rm RemoteMessager
	if errors.As(err, &rm) {
		if msg := rm.RemoteMessage(); msg != "" {
			return msg
		}
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return DefaultErrorMessage
}
