package event

import "errors"

var (
	ErrEmptyBatch = errors.New("no events to process")

	ErrBatchTooLarge = errors.New("batch size exceeds limit")

	ErrMissingFields = errors.New("missing required fields")

	ErrMalformedEvent = errors.New("malformed event")

	ErrInvalidEventType = errors.New("invalid event type")

	ErrPublishFailed = errors.New("failed to publish batch")
)
