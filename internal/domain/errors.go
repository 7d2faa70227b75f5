package domain

import "errors"

var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidTimecode = errors.New("invalid timecode format")
	ErrInvalidPayload  = errors.New("invalid backend payload")
	ErrUnsupportedKind = errors.New("unsupported job kind")
)
