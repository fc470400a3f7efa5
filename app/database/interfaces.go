package database

import (
	"time"
)

type FeedRepository interface {
	GetFeed(feedName string) (*Feed, error)
	GetAllFeeds() ([]Feed, error)
	GetDueFeeds(now time.Time, limit int) ([]Feed, error)
	GetFeedCount() (int, error)
	GetEnabledFeedCount() (int, error)

	UpsertFeed(feed Feed) (string, bool, error)
	UpdateScheduleState(feedID string, state ScheduleState) error
}

type RunRepository interface {
	// CreateRun atomically creates a run in the scheduled state. Returns
	// ErrRunActive when a scheduled/running run already exists for the feed.
	CreateRun(feedID string) (*ParseRun, error)
	MarkRunning(runID string) error
	CompleteRun(runID string, result RunResult) error

	// FailOrphanedRuns closes every scheduled/running run with the given
	// failure reason and returns how many rows it touched. Called once at
	// startup so runs left behind by a crash do not wedge their feeds.
	FailOrphanedRuns(reason string) (int, error)

	GetActiveRun(feedID string) (*ParseRun, error)
	GetRecentRuns(feedID string, limit int) ([]ParseRun, error)
	GetRunStats() (total int, succeeded int, failed int, err error)
}

type ItemRepository interface {
	GetItemByFingerprint(feedID, fingerprint string) (*Item, error)
	InsertItem(feedID, fingerprint, title, link string, publishedAt *time.Time, summary string, now time.Time) (string, error)
	RefreshItem(itemID, title, link string, publishedAt *time.Time, summary string, seenAt time.Time) error
	TouchItem(itemID string, seenAt time.Time) error
	AddRunItem(runID, itemID, changeKind string, seenAt time.Time) error

	GetVisibleItems(feedName string, limit int) ([]Item, error)
	GetItemCount(feedName string) (int, error)
}
