package query

import "errors"

var (
	ErrHistoryUnavailable = errors.New("history storage not configured")
	ErrInvalidRange       = errors.New("invalid date range")
	ErrUnknownMetric      = errors.New("unknown metric")
)
