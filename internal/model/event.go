package model

import (
	"encoding/json"
	"time"
)

type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusCompleted EventStatus = "completed"
	EventStatusFailed    EventStatus = "failed"
)

// Category routes an event to exactly one processor.
type Category string

const (
	CategoryRepoRequest     Category = "repo_request"
	CategorySkillSubmission Category = "skill_submission"
	CategoryBug             Category = "bug"
	CategoryFeature         Category = "feature"
	CategoryOther           Category = "other"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	CategoryRepoRequest,
	CategorySkillSubmission,
	CategoryBug,
	CategoryFeature,
	CategoryOther,
}

// InboundEvent is a parsed webhook delivery. It only lives for the duration of
// the HTTP request; everything downstream works from the StoredEvent.
type InboundEvent struct {
	ReceivedAt time.Time
	Payload    map[string]any
	RawBody    []byte
	EventType  string
	DeliveryID string
	RepoName   string
	Action     string
}

// StoredEvent is one row of the append-only event log.
type StoredEvent struct {
	ReceivedAt  time.Time       `json:"received_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	LastError   *string         `json:"last_error,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	DeliveryID  string          `json:"delivery_id,omitempty"`
	EventType   string          `json:"event_type"`
	Action      string          `json:"action,omitempty"`
	Category    Category        `json:"category"`
	RepoName    string          `json:"repo_name"`
	Status      EventStatus     `json:"status"`
	ID          int64           `json:"id"`
	RetryCount  int             `json:"retry_count"`
}

// Retryable reports whether the event may be picked up for another attempt.
func (e StoredEvent) Retryable(maxRetries int) bool {
	switch e.Status {
	case EventStatusPending:
		return true
	case EventStatusFailed:
		return e.RetryCount < maxRetries
	default:
		return false
	}
}

// EventStats summarizes the event log.
type EventStats struct {
	ByStatus        map[EventStatus]int `json:"by_status"`
	ByCategory      map[Category]int    `json:"by_category"`
	LastProcessedAt *time.Time          `json:"last_processed_at,omitempty"`
	Total           int                 `json:"total"`
}
