package event

import (
	"math"

	"github.com/Wuchinator/landing-analytics/internal/storage"
)

// deltas accumulates counter increments for one batch before any write.
type deltas map[string]int64

func (d deltas) add(key string, by int64) {
	d[key] += by
}

func classify(events []Event) map[Category][]*Event {
	buckets := make(map[Category][]*Event)
	for i := range events {
		e := &events[i]
		buckets[e.Category()] = append(buckets[e.Category()], e)
	}
	return buckets
}

// foldCounters adds the counter effects of e to d. Engagement events have no
// counter effects here; they go through storage.Engagement.
func foldCounters(d deltas, e *Event) {
	day := storage.Day(e.Time())

	switch e.EventName {
	case EventTypePageView:
		d.add(storage.PageviewsTotal, 1)
		d.add(storage.PageviewsDay(day), 1)
		if campaign := e.StringProperty("utm_campaign"); campaign != "" {
			d.add(storage.CampaignViews(campaign), 1)
		}

	case EventTypeClick:
		d.add(storage.ClicksTotal, 1)
		d.add(storage.ClicksDay(day), 1)
		action := e.StringProperty("action")
		if action == "" {
			action = ActionGeneric
		}
		d.add(storage.ClicksAction(action), 1)
		if action == ActionCheckoutClick {
			d.add(storage.CheckoutFormsTotal, 1)
			d.add(storage.CheckoutFormsDay(day), 1)
		}

	case EventTypeScrollDepth:
		if depth, ok := e.NumberProperty("depth"); ok && depth > 0 {
			d.add(storage.ScrollDepth(int(math.Round(depth))), 1)
		}

	case EventTypeFormStart:
		d.add(storage.FormsStarted, 1)
	case EventTypeFormFieldComplete:
		d.add(storage.FormsFieldCompleted, 1)
	case EventTypeFormSubmit:
		d.add(storage.FormsCompleted, 1)
		d.add(storage.LeadsTotal, 1)
		d.add(storage.LeadsDay(day), 1)
	case EventTypeFormAbandon:
		d.add(storage.FormsAbandoned, 1)
		d.add(storage.AbandonedTotal, 1)
		d.add(storage.AbandonedDay(day), 1)

	case EventTypeLeadCapture:
		d.add(storage.LeadsTotal, 1)
		d.add(storage.LeadsDay(day), 1)
	case EventTypeCheckoutFormShown:
		d.add(storage.CheckoutFormsTotal, 1)
		d.add(storage.CheckoutFormsDay(day), 1)
	case EventTypeCheckoutAbandoned:
		d.add(storage.AbandonedTotal, 1)
		d.add(storage.AbandonedDay(day), 1)

	case EventTypeError:
		d.add(storage.ErrorsTotal, 1)
		d.add(storage.ErrorsDay(day), 1)
	}
}

// engagementMillis converts the reported duration (seconds) to milliseconds.
func engagementMillis(e *Event) int64 {
	seconds, ok := e.NumberProperty("duration")
	if !ok || seconds <= 0 {
		return 0
	}
	return int64(math.Round(seconds * 1000))
}
