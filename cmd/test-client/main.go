package main

import (
	"fmt"
	"log"
	"os"
	"time"

	resty "github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/Wuchinator/landing-analytics/internal/event"
)

func main() {
	baseURL := os.Getenv("EVENT_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second)

	var health map[string]any
	resp, err := client.R().SetResult(&health).Get("/health")
	if err != nil {
		log.Fatalf("Health check failed: %v", err)
	}
	fmt.Printf("Health check: %s %v\n\n", resp.Status(), health)

	fmt.Println("Sending batch of events")
	sessionID := uuid.New().String()
	now := time.Now().UnixMilli()

	events := []event.Event{
		{
			EventID:    uuid.New().String(),
			EventName:  event.EventTypePageView,
			Timestamp:  now,
			SessionID:  sessionID,
			Properties: map[string]any{"page": "/", "utm_campaign": "spring"},
		},
		{
			EventID:    uuid.New().String(),
			EventName:  event.EventTypeScrollDepth,
			Timestamp:  now + 2000,
			SessionID:  sessionID,
			Properties: map[string]any{"depth": 50},
		},
		{
			EventID:    uuid.New().String(),
			EventName:  event.EventTypeClick,
			Timestamp:  now + 4000,
			SessionID:  sessionID,
			Properties: map[string]any{"action": event.ActionCheckoutClick},
		},
		{
			EventID:    uuid.New().String(),
			EventName:  event.EventTypeEngagementTime,
			Timestamp:  now + 6000,
			SessionID:  sessionID,
			Properties: map[string]any{"duration": 6},
		},
		{
			EventID:   uuid.New().String(),
			EventName: event.EventTypeFormSubmit,
			Timestamp: now + 8000,
			SessionID: sessionID,
		},
	}

	var batch map[string]any
	resp, err = client.R().
		SetBody(map[string]any{"events": events}).
		SetResult(&batch).
		SetError(&batch).
		Post("/api/analytics/batch")
	if err != nil {
		log.Fatalf("Failed to send batch: %v", err)
	}
	fmt.Printf("Batch response: %s %v\n\n", resp.Status(), batch)

	fmt.Println("Sending legacy track event")
	resp, err = client.R().
		SetBody(map[string]any{
			"event_type": "engagement",
			"session_id": sessionID,
			"data":       map[string]any{"duration": 9000},
		}).
		Post("/api/analytics/track")
	if err != nil {
		log.Fatalf("Failed to track event: %v", err)
	}
	fmt.Printf("Track response: %s %s\n\n", resp.Status(), resp.String())

	resp, err = client.R().
		SetBody(map[string]string{"sessionId": sessionID}).
		Post("/api/analytics/active-visitors")
	if err != nil {
		log.Fatalf("Failed to mark visitor active: %v", err)
	}
	fmt.Printf("Active visitors: %s %s\n", resp.Status(), resp.String())

	fmt.Println("\nAll requests sent")
}
