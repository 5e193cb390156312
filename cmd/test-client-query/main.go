package main

import (
	"fmt"
	"log"
	"os"
	"time"

	resty "github.com/go-resty/resty/v2"

	"github.com/Wuchinator/landing-analytics/internal/query"
)

func main() {
	baseURL := os.Getenv("QUERY_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8081"
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(os.Getenv("ANALYTICS_PASSWORD")).
		SetTimeout(5 * time.Second)

	var snap query.Snapshot
	resp, err := client.R().
		SetQueryParam("days", "7").
		SetResult(&snap).
		Get("/api/stats")
	if err != nil {
		log.Fatalf("Failed to get stats: %v", err)
	}
	if resp.IsError() {
		log.Fatalf("Stats request rejected: %s %s", resp.Status(), resp.String())
	}

	fmt.Printf("Storage: %s (%s)\n", snap.Storage.Type, snap.Storage.Indicator)
	fmt.Printf("Pageviews: %d total, %d today\n", snap.Visitors.Total, snap.Visitors.Today)
	fmt.Printf("Unique visitors: %d total, %d today\n", snap.Visitors.Unique, snap.Visitors.UniqueToday)
	fmt.Printf("Click rate: %.1f%%, lead conversion: %.1f%%\n", snap.Clicks.Rate, snap.Leads.ConversionRate)
	fmt.Printf("Average time: %ds, average scroll: %d%%\n", snap.AverageTime, snap.ScrollDepth.Average)
	fmt.Printf("Active visitors: %d\n", snap.ActiveVisitors)

	fmt.Println("\nTimeline:")
	for _, point := range snap.Timeline {
		fmt.Printf("   %s: %d views, %d clicks\n", point.Date, point.Visitors, point.Clicks)
	}

	var history query.History
	resp, err = client.R().SetResult(&history).Get("/api/stats/history")
	if err != nil {
		log.Fatalf("Failed to get history: %v", err)
	}
	if resp.IsError() {
		fmt.Printf("\nHistory unavailable: %s\n", resp.String())
		return
	}
	fmt.Printf("\nHistory %s..%s: %d rows\n", history.From, history.To, len(history.Entries))

	fmt.Println("\nAll queries completed successfully!")
}
