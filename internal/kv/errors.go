package kv

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrWrongType = errors.New("operation against a key holding the wrong kind of value")

	ErrNotInteger = errors.New("value is not an integer")

	ErrInvalidTTL = errors.New("ttl must be positive")

	ErrClosed = errors.New("backend closed")
)

// PipelineError reports a pipeline that reached the server but in which some
// commands failed. Every key not listed in Failed was applied.
type PipelineError struct {
	Failed []string
	Total  int
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline increment failed for %d of %d keys (%s): %v",
		len(e.Failed), e.Total, strings.Join(e.Failed, ", "), e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
