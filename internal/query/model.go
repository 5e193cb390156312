package query

import (
	"time"

	"github.com/Wuchinator/landing-analytics/internal/kv"
)

// Snapshot is the dashboard view composed at request time.
type Snapshot struct {
	Visitors       VisitorStats    `json:"visitors"`
	Clicks         RateStats       `json:"clicks"`
	Leads          ConversionStats `json:"leads"`
	CheckoutForms  ConversionStats `json:"checkoutForms"`
	Abandonment    RateStats       `json:"abandonment"`
	Errors         CountStats      `json:"errors"`
	AverageTime    int64           `json:"averageTime"`
	ScrollDepth    ScrollDepth     `json:"scrollDepth"`
	Timeline       []TimelinePoint `json:"timeline"`
	ActiveVisitors int64           `json:"activeVisitors"`
	Storage        kv.Status       `json:"storage"`
	LastUpdated    time.Time       `json:"lastUpdated"`
}

type VisitorStats struct {
	Total       int64 `json:"total"`
	Today       int64 `json:"today"`
	Unique      int64 `json:"unique"`
	UniqueToday int64 `json:"uniqueToday"`
}

type CountStats struct {
	Total int64 `json:"total"`
	Today int64 `json:"today"`
}

type RateStats struct {
	Total int64   `json:"total"`
	Today int64   `json:"today"`
	Rate  float64 `json:"rate"`
}

type ConversionStats struct {
	Total          int64   `json:"total"`
	Today          int64   `json:"today"`
	ConversionRate float64 `json:"conversionRate"`
}

type ScrollDepth struct {
	Average      int64          `json:"average"`
	Distribution []ScrollBucket `json:"distribution"`
}

type ScrollBucket struct {
	Depth int   `json:"depth"`
	Count int64 `json:"count"`
}

type TimelinePoint struct {
	Date     string `json:"date"`
	Visitors int64  `json:"visitors"`
	Clicks   int64  `json:"clicks"`
}

// History is the rolled-up daily series returned by the history endpoint.
type History struct {
	From    string         `json:"from"`
	To      string         `json:"to"`
	Metric  string         `json:"metric,omitempty"`
	Entries []HistoryEntry `json:"entries"`
}

type HistoryEntry struct {
	Date   string `json:"date"`
	Metric string `json:"metric"`
	Value  int64  `json:"value"`
}
