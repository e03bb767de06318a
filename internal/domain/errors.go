package domain

import (
	"context"
	"errors"
)

// Failure taxonomy shared by the API client and both controllers.
var (
	// ErrAuthRejected is any 401 from the remote API. Always forces logout.
	ErrAuthRejected = errors.New("credential rejected by server")

	// ErrValidationRejected blocks a submission locally; no network call is made.
	ErrValidationRejected = errors.New("validation rejected")

	// ErrServerRejected is a non-401 error status or an unreadable response.
	ErrServerRejected = errors.New("server rejected request")

	// ErrNetworkUnavailable means no response was received.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrSubmissionInFlight is returned when a prediction is already outstanding.
	ErrSubmissionInFlight = errors.New("prediction already in flight")

	// ErrNotFound is returned by stores when a key has no value.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput reports malformed local data: an empty store key or a CSV missing a column.
	ErrInvalidInput = errors.New("invalid input")
)

// ErrorKind classifies an error into the taxonomy above.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindAuthRejected       ErrorKind = "auth_rejected"
	KindValidationRejected ErrorKind = "validation_rejected"
	KindServerRejected     ErrorKind = "server_rejected"
	KindNetworkUnavailable ErrorKind = "network_unavailable"
	KindInFlight           ErrorKind = "in_flight"
	KindCanceled           ErrorKind = "canceled"
)

// Classify maps err onto an ErrorKind. Unknown errors count as server rejections.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAuthRejected):
		return KindAuthRejected
	case errors.Is(err, ErrValidationRejected):
		return KindValidationRejected
	case errors.Is(err, ErrSubmissionInFlight):
		return KindInFlight
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrNetworkUnavailable):
		return KindNetworkUnavailable
	default:
		return KindServerRejected
	}
}

// IsAuthRejected reports whether err should invalidate the session.
func IsAuthRejected(err error) bool {
	return errors.Is(err, ErrAuthRejected)
}
