package event

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Event is one client-reported occurrence. It is folded into aggregates and
// never stored verbatim.
type Event struct {
	EventID    string         `json:"eventId"`
	EventName  string         `json:"eventName"`
	Timestamp  int64          `json:"timestamp"`
	SessionID  string         `json:"sessionId"`
	Properties map[string]any `json:"properties,omitempty"`

	// decodeErr is set when the raw event could not be decoded at all.
	decodeErr error
}

const (
	EventTypePageView          = "page_view"
	EventTypeClick             = "click"
	EventTypeScrollDepth       = "scroll_depth"
	EventTypeFormStart         = "form_start"
	EventTypeFormFieldComplete = "form_field_complete"
	EventTypeFormSubmit        = "form_submit"
	EventTypeFormAbandon       = "form_abandon"
	EventTypeEngagementTime    = "engagement_time"
	EventTypeError             = "error"
	EventTypeLeadCapture       = "lead_capture"
	EventTypeCheckoutFormShown = "checkout_form_shown"
	EventTypeCheckoutAbandoned = "checkout_abandoned"
)

const (
	ActionCheckoutClick = "checkout_click"
	ActionGeneric       = "generic"

	unknownEventID = "unknown"
)

type Category string

const (
	CategoryPageView   Category = "pageviews"
	CategoryClick      Category = "clicks"
	CategoryScroll     Category = "scrolls"
	CategoryForm       Category = "forms"
	CategoryEngagement Category = "engagement"
	CategoryError      Category = "errors"
	CategoryCheckout   Category = "checkout"
	CategoryOther      Category = "other"
)

func (e *Event) Category() Category {
	switch e.EventName {
	case EventTypePageView:
		return CategoryPageView
	case EventTypeClick:
		return CategoryClick
	case EventTypeScrollDepth:
		return CategoryScroll
	case EventTypeFormStart, EventTypeFormFieldComplete, EventTypeFormSubmit, EventTypeFormAbandon:
		return CategoryForm
	case EventTypeEngagementTime:
		return CategoryEngagement
	case EventTypeError:
		return CategoryError
	case EventTypeLeadCapture, EventTypeCheckoutFormShown, EventTypeCheckoutAbandoned:
		return CategoryCheckout
	default:
		return CategoryOther
	}
}

func (e *Event) Validate() error {
	if e.decodeErr != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, e.decodeErr)
	}
	var missing []string
	if e.EventID == "" {
		missing = append(missing, "eventId")
	}
	if e.EventName == "" {
		missing = append(missing, "eventName")
	}
	if e.Timestamp <= 0 {
		missing = append(missing, "timestamp")
	}
	if e.SessionID == "" {
		missing = append(missing, "sessionId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	return nil
}

// ReportedID is the identifier used in error entries.
func (e *Event) ReportedID() string {
	if e.EventID == "" {
		return unknownEventID
	}
	return e.EventID
}

func (e *Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

func (e *Event) StringProperty(key string) string {
	switch v := e.Properties[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// NumberProperty accepts JSON numbers and numeric strings.
func (e *Event) NumberProperty(key string) (float64, bool) {
	switch v := e.Properties[key].(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// DecodeEvents decodes each raw event on its own so one malformed entry
// fails only itself.
func DecodeEvents(raws []json.RawMessage) []Event {
	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		var e Event
		if err := json.Unmarshal(raw, &e); err != nil {
			var partial struct {
				EventID any `json:"eventId"`
			}
			_ = json.Unmarshal(raw, &partial)
			id, _ := partial.EventID.(string)
			events = append(events, Event{EventID: id, decodeErr: err})
			continue
		}
		events = append(events, e)
	}
	return events
}

// BatchResult is the per-batch outcome reported to the client.
type BatchResult struct {
	Processed int          `json:"processed"`
	Failed    int          `json:"failed"`
	Errors    []EventError `json:"errors,omitempty"`
}

type EventError struct {
	EventID string `json:"eventId"`
	Error   string `json:"error"`
}

func (r *BatchResult) fail(e *Event, err error) {
	r.Failed++
	r.Errors = append(r.Errors, EventError{EventID: e.ReportedID(), Error: err.Error()})
}

// BatchMessage is the Kafka payload for asynchronously ingested batches.
type BatchMessage struct {
	Events     []Event   `json:"events"`
	AcceptedAt time.Time `json:"acceptedAt"`
}
