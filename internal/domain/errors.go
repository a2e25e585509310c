package domain

import (
	"errors"
	"fmt"
)

// ErrorType classifies a channel failure for the retry ledger.
type ErrorType string

const (
	ErrorAuth        ErrorType = "auth"
	ErrorRateLimited ErrorType = "rate_limited"
	ErrorBadRequest  ErrorType = "bad_request"
	ErrorNetwork     ErrorType = "network"
	ErrorUnknown     ErrorType = "unknown"
)

// Permanent reports whether retrying cannot help.
func (t ErrorType) Permanent() bool {
	return t == ErrorAuth || t == ErrorBadRequest
}

// PublishError is returned by channel adapters.
type PublishError struct {
	Channel string
	Type    ErrorType
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Channel, e.Type, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// NewPublishError wraps err with a classification.
func NewPublishError(channel string, typ ErrorType, err error) *PublishError {
	return &PublishError{Channel: channel, Type: typ, Err: err}
}

// ClassifyError extracts the ErrorType carried by err, or unknown.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	var pe *PublishError
	if errors.As(err, &pe) && pe.Type != "" {
		return pe.Type
	}
	return ErrorUnknown
}

// ErrorTypeForStatus maps an HTTP status code to an ErrorType.
func ErrorTypeForStatus(code int) ErrorType {
	switch {
	case code == 401 || code == 403:
		return ErrorAuth
	case code == 429:
		return ErrorRateLimited
	case code >= 400 && code < 500:
		return ErrorBadRequest
	case code >= 500:
		return ErrorNetwork
	default:
		return ErrorUnknown
	}
}
