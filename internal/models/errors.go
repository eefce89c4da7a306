package models

import "errors"

var (
	// ErrNotFound: unknown sensor, sensor chain or alert.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput: malformed value or missing required field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStorage: the write in progress failed.
	ErrStorage = errors.New("storage failure")
	// ErrChannelDelivery: one notification channel failed. Never returned upward.
	ErrChannelDelivery = errors.New("channel delivery failed")
)

// ErrorKind maps err onto the taxonomy names used in batch results.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, ErrChannelDelivery):
		return "ChannelDeliveryFailed"
	default:
		return "StorageFailure"
	}
}
