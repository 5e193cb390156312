package analytics

import (
	"time"

	"github.com/Wuchinator/landing-analytics/internal/storage"
)

// DailyMetric is one rolled-up per-day value copied from the KV store.
type DailyMetric struct {
	Date      time.Time `db:"date" json:"date"`
	Metric    string    `db:"metric" json:"metric"`
	Value     int64     `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func NewDailyMetric(day time.Time, metric string, value int64, now time.Time) *DailyMetric {
	return &DailyMetric{
		Date:      day.UTC().Truncate(24 * time.Hour),
		Metric:    metric,
		Value:     value,
		UpdatedAt: now.UTC(),
	}
}

const (
	MetricPageviews      = "pageviews"
	MetricClicks         = "clicks"
	MetricCheckoutForms  = "checkout_forms"
	MetricLeads          = "leads"
	MetricAbandoned      = "abandoned"
	MetricErrors         = "errors"
	MetricUniqueVisitors = "unique_visitors"
)

// dailyCounters maps rolled-up metric names to their per-day counter key.
var dailyCounters = []struct {
	metric string
	key    func(day string) string
}{
	{MetricPageviews, storage.PageviewsDay},
	{MetricClicks, storage.ClicksDay},
	{MetricCheckoutForms, storage.CheckoutFormsDay},
	{MetricLeads, storage.LeadsDay},
	{MetricAbandoned, storage.AbandonedDay},
	{MetricErrors, storage.ErrorsDay},
}

// Metrics lists every metric the rollup writes.
func Metrics() []string {
	names := make([]string, 0, len(dailyCounters)+1)
	for _, c := range dailyCounters {
		names = append(names, c.metric)
	}
	return append(names, MetricUniqueVisitors)
}
