package database

import (
	"time"
)

// Parse run lifecycle statuses. A run is terminal once it reaches
// succeeded or failed and is never mutated afterwards.
const (
	RunStatusScheduled = "scheduled"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Per-item change classification within one parse run.
const (
	ChangeKindNew       = "new"
	ChangeKindRefreshed = "refreshed"
	ChangeKindUnchanged = "unchanged"
)

// Source modes for a feed.
const (
	ModeHTML = "html" // selector extraction over fetched markup
	ModeFeed = "feed" // source already serves RSS/Atom
	ModeAuto = "auto" // sniff the response and pick one of the above
)

// SelectorSet describes where to find the item list, individual items and
// their fields within a page's markup. Immutable once a run starts.
type SelectorSet struct {
	ListContainer string
	Item          string
	Title         string
	Link          string
	Published     string // optional
	Summary       string // optional
}

type Feed struct {
	ID              string // Database UUID
	Name            string // Feed identifier derived from definition filename
	SourceURL       string
	Title           string
	Mode            string
	Selectors       SelectorSet
	IntervalUnit    string // hour, day, week
	IntervalValue   int
	TtlMinutes      int
	Etag            string
	LastModified    string
	Enabled         bool
	NextParseAfter  *time.Time
	LastParsedAt    *time.Time
	LastParseStatus string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ParseRun struct {
	ID                   string
	FeedID               string
	Status               string
	StartedAt            time.Time
	CompletedAt          *time.Time
	HTTPStatus           *int
	FailureReason        string
	FetchedCount         int
	NewCount             int
	UpdatedCount         int
	SkippedCount         int
	RetryCount           int
	CircuitOpen          bool
	ResponseEtag         string
	ResponseLastModified string
}

type Item struct {
	ID           string
	FeedID       string
	Fingerprint  string
	Title        string
	Link         string
	PublishedAt  *time.Time
	Summary      string
	DiscoveredAt time.Time
	LastSeenAt   time.Time
}

type RunItem struct {
	RunID      string
	ItemID     string
	ChangeKind string
	SeenAt     time.Time
}

// RunResult carries the terminal outcome of a parse run.
type RunResult struct {
	Status               string
	CompletedAt          time.Time
	HTTPStatus           *int
	FailureReason        string
	FetchedCount         int
	NewCount             int
	UpdatedCount         int
	SkippedCount         int
	RetryCount           int
	CircuitOpen          bool
	ResponseEtag         string
	ResponseLastModified string
}

// ScheduleState is the per-feed schedule update applied after every
// terminal run. Nil Etag/LastModified leave the stored validators untouched.
type ScheduleState struct {
	NextParseAfter  time.Time
	LastParsedAt    time.Time
	LastParseStatus string
	Etag            *string
	LastModified    *string
}
