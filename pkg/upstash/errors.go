package upstash

import "errors"

var (
	ErrNotConfigured = errors.New("upstash url and token are required")

	ErrUnauthorized = errors.New("upstash rejected credentials")

	ErrServer = errors.New("upstash server error")

	ErrMalformedResponse = errors.New("malformed upstash response")

	ErrCircuitOpen = errors.New("upstash circuit breaker open")
)

// CommandError is an error reply for an individual Redis command.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	if e.Command == "" {
		return "redis: " + e.Message
	}
	return "redis " + e.Command + ": " + e.Message
}
