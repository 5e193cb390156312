// Package storage layers typed analytics operations (counters, unique
// visitor sets, session records, engagement marks, presence) over a
// kv.Backend and applies the degraded-default policy for reads.
package storage

import (
	"strconv"
	"time"
)

const (
	Prefix = "analytics:"

	// DayLayout names per-day counters and scopes, always in UTC.
	DayLayout = "2006-01-02"
)

const (
	PageviewsTotal     = Prefix + "pageviews:total"
	ClicksTotal        = Prefix + "clicks:total"
	CheckoutFormsTotal = Prefix + "checkout_forms:total"
	LeadsTotal         = Prefix + "leads:total"
	AbandonedTotal     = Prefix + "abandoned:total"
	ErrorsTotal        = Prefix + "errors:total"

	FormsStarted        = Prefix + "forms:started"
	FormsCompleted      = Prefix + "forms:completed"
	FormsAbandoned      = Prefix + "forms:abandoned"
	FormsFieldCompleted = Prefix + "forms:field_completed"

	EngagementTotalMs = Prefix + "engagement:total_ms"
	EngagementCount   = Prefix + "engagement:count"

	VisitorsUnique = Prefix + "visitors:unique"

	activeVisitorPrefix = Prefix + "active_visitors:"
)

// ScrollMilestones are the depths reported by the landing page.
var ScrollMilestones = []int{25, 50, 75, 100}

func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

func PageviewsDay(day string) string     { return Prefix + "pageviews:" + day }
func ClicksDay(day string) string        { return Prefix + "clicks:" + day }
func ClicksAction(action string) string  { return Prefix + "clicks:action:" + action }
func CheckoutFormsDay(day string) string { return Prefix + "checkout_forms:" + day }
func LeadsDay(day string) string         { return Prefix + "leads:" + day }
func AbandonedDay(day string) string     { return Prefix + "abandoned:" + day }
func ErrorsDay(day string) string        { return Prefix + "errors:" + day }
func VisitorsUniqueDay(day string) string {
	return VisitorsUnique + ":" + day
}

func ScrollDepth(depth int) string {
	return Prefix + "scroll:" + strconv.Itoa(depth)
}

func CampaignViews(campaign string) string {
	return Prefix + "campaigns:" + campaign + ":views"
}

func SessionKey(sessionID string) string {
	return Prefix + "session:" + sessionID
}

// EngagementMarkKey holds the highest engagement duration (ms) already
// added to EngagementTotalMs for one session.
func EngagementMarkKey(sessionID string) string {
	return Prefix + "session:engagement:" + sessionID
}

func ActiveVisitorKey(sessionID string) string {
	return activeVisitorPrefix + sessionID
}
