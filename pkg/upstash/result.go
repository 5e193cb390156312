package upstash

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// Result is one command reply: either a result payload or an error string.
type Result struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// Err returns the command error carried by a pipeline entry, if any.
func (r Result) Err() error {
	if r.Error == "" {
		return nil
	}
	return &CommandError{Message: r.Error}
}

// IsNil reports whether the reply was a Redis nil.
func (r Result) IsNil() bool {
	return len(r.Result) == 0 || string(r.Result) == "null"
}

// Int decodes an integer reply. Numeric strings are accepted as well since
// some proxies stringify integer replies.
func (r Result) Int() (int64, error) {
	if r.IsNil() {
		return 0, nil
	}
	var n int64
	if err := json.Unmarshal(r.Result, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(r.Result, &s); err != nil {
		return 0, fmt.Errorf("%w: not an integer: %s", ErrMalformedResponse, r.Result)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: not an integer: %q", ErrMalformedResponse, s)
	}
	return n, nil
}

// Text decodes a bulk string reply; ok is false for nil.
func (r Result) Text() (value string, ok bool, err error) {
	if r.IsNil() {
		return "", false, nil
	}
	if err := json.Unmarshal(r.Result, &value); err != nil {
		// Numbers come back unquoted when stored through JSON clients.
		var n json.Number
		if numErr := json.Unmarshal(r.Result, &n); numErr != nil {
			return "", false, fmt.Errorf("%w: not a string: %s", ErrMalformedResponse, r.Result)
		}
		return n.String(), true, nil
	}
	return value, true, nil
}

// Strings decodes an array reply such as KEYS.
func (r Result) Strings() ([]string, error) {
	if r.IsNil() {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal(r.Result, &values); err != nil {
		return nil, fmt.Errorf("%w: not a string array: %s", ErrMalformedResponse, r.Result)
	}
	return values, nil
}
