package api

import (
	"time"
)

type FeedResponse struct {
	Name            string     `json:"name"`
	SourceURL       string     `json:"source_url"`
	Title           string     `json:"title"`
	Mode            string     `json:"mode"`
	Enabled         bool       `json:"enabled"`
	IntervalUnit    string     `json:"interval_unit"`
	IntervalValue   int        `json:"interval_value"`
	NextParseAfter  *time.Time `json:"next_parse_after,omitempty"`
	LastParsedAt    *time.Time `json:"last_parsed_at,omitempty"`
	LastParseStatus string     `json:"last_parse_status,omitempty"`
	ItemCount       int        `json:"item_count"`
}

type RunResponse struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	HTTPStatus    *int       `json:"http_status,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	FetchedCount  int        `json:"fetched_count"`
	NewCount      int        `json:"new_count"`
	UpdatedCount  int        `json:"updated_count"`
	SkippedCount  int        `json:"skipped_count"`
	RetryCount    int        `json:"retry_count"`
	CircuitOpen   bool       `json:"circuit_open"`
}

type TriggerResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type BreakerResponse struct {
	Host                string     `json:"host"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
}
