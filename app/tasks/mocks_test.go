package tasks

import (
	"fmt"
	"sync"
	"time"

	"github.com/pagecomb/pagecomb/app/cfg"
	"github.com/pagecomb/pagecomb/app/database"
)

func setupTestCfg() {
	cfg.Set(&cfg.Cfg{
		WorkerCount:       2,
		SchedulerInterval: 60,
		TriggerCooldown:   300,
		FetchTimeout:      2,
		FetchRetries:      1,
		BreakerFailures:   5,
		BreakerCooldown:   300,
		UserAgent:         "Page Comb Test/1.0",
	})
}

type mockFeedRepository struct {
	mu       sync.Mutex
	feeds    map[string]*database.Feed
	dueFeeds []database.Feed
	states   map[string]database.ScheduleState
}

func newMockFeedRepository() *mockFeedRepository {
	return &mockFeedRepository{
		feeds:  make(map[string]*database.Feed),
		states: make(map[string]database.ScheduleState),
	}
}

func (m *mockFeedRepository) addFeed(feed database.Feed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := feed
	m.feeds[feed.Name] = &copied
}

func (m *mockFeedRepository) GetFeed(feedName string) (*database.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	feed, ok := m.feeds[feedName]
	if !ok {
		return nil, nil
	}
	copied := *feed
	return &copied, nil
}

func (m *mockFeedRepository) GetAllFeeds() ([]database.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	feeds := make([]database.Feed, 0, len(m.feeds))
	for _, feed := range m.feeds {
		feeds = append(feeds, *feed)
	}
	return feeds, nil
}

func (m *mockFeedRepository) GetDueFeeds(now time.Time, limit int) ([]database.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.dueFeeds) {
		limit = len(m.dueFeeds)
	}
	return append([]database.Feed(nil), m.dueFeeds[:limit]...), nil
}

func (m *mockFeedRepository) GetFeedCount() (int, error) {
	return len(m.feeds), nil
}

func (m *mockFeedRepository) GetEnabledFeedCount() (int, error) {
	return len(m.feeds), nil
}

func (m *mockFeedRepository) UpsertFeed(feed database.Feed) (string, bool, error) {
	m.addFeed(feed)
	return feed.ID, false, nil
}

func (m *mockFeedRepository) UpdateScheduleState(feedID string, state database.ScheduleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[feedID] = state
	return nil
}

func (m *mockFeedRepository) scheduleState(feedID string) (database.ScheduleState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[feedID]
	return state, ok
}

type mockRunRepository struct {
	mu     sync.Mutex
	runs   map[string]*database.ParseRun
	nextID int
}

func newMockRunRepository() *mockRunRepository {
	return &mockRunRepository{runs: make(map[string]*database.ParseRun)}
}

func (m *mockRunRepository) CreateRun(feedID string) (*database.ParseRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, run := range m.runs {
		if run.FeedID == feedID &&
			(run.Status == database.RunStatusScheduled || run.Status == database.RunStatusRunning) {
			return nil, database.ErrRunActive
		}
	}

	m.nextID++
	run := &database.ParseRun{
		ID:        fmt.Sprintf("run-%d", m.nextID),
		FeedID:    feedID,
		Status:    database.RunStatusScheduled,
		StartedAt: time.Now().UTC(),
	}
	m.runs[run.ID] = run
	copied := *run
	return &copied, nil
}

func (m *mockRunRepository) MarkRunning(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.Status != database.RunStatusScheduled {
		return fmt.Errorf("run %s is not in the scheduled state", runID)
	}
	run.Status = database.RunStatusRunning
	return nil
}

func (m *mockRunRepository) CompleteRun(runID string, result database.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	if run.Status != database.RunStatusScheduled && run.Status != database.RunStatusRunning {
		return fmt.Errorf("run %s is already terminal", runID)
	}
	run.Status = result.Status
	completedAt := result.CompletedAt
	run.CompletedAt = &completedAt
	run.HTTPStatus = result.HTTPStatus
	run.FailureReason = result.FailureReason
	run.FetchedCount = result.FetchedCount
	run.NewCount = result.NewCount
	run.UpdatedCount = result.UpdatedCount
	run.SkippedCount = result.SkippedCount
	run.RetryCount = result.RetryCount
	run.CircuitOpen = result.CircuitOpen
	run.ResponseEtag = result.ResponseEtag
	run.ResponseLastModified = result.ResponseLastModified
	return nil
}

func (m *mockRunRepository) FailOrphanedRuns(reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	swept := 0
	for _, run := range m.runs {
		if run.Status == database.RunStatusScheduled || run.Status == database.RunStatusRunning {
			run.Status = database.RunStatusFailed
			run.FailureReason = reason
			completedAt := time.Now().UTC()
			run.CompletedAt = &completedAt
			swept++
		}
	}
	return swept, nil
}

func (m *mockRunRepository) GetActiveRun(feedID string) (*database.ParseRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, run := range m.runs {
		if run.FeedID == feedID &&
			(run.Status == database.RunStatusScheduled || run.Status == database.RunStatusRunning) {
			copied := *run
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockRunRepository) GetRecentRuns(feedID string, limit int) ([]database.ParseRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]database.ParseRun, 0)
	for _, run := range m.runs {
		if run.FeedID == feedID {
			runs = append(runs, *run)
		}
	}
	return runs, nil
}

func (m *mockRunRepository) GetRunStats() (int, int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total, succeeded, failed int
	for _, run := range m.runs {
		total++
		switch run.Status {
		case database.RunStatusSucceeded:
			succeeded++
		case database.RunStatusFailed:
			failed++
		}
	}
	return total, succeeded, failed, nil
}

func (m *mockRunRepository) getRun(runID string) *database.ParseRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil
	}
	copied := *run
	return &copied
}

func (m *mockRunRepository) activeCount(feedID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, run := range m.runs {
		if run.FeedID == feedID &&
			(run.Status == database.RunStatusScheduled || run.Status == database.RunStatusRunning) {
			count++
		}
	}
	return count
}

type mockItemRepository struct {
	mu       sync.Mutex
	items    map[string]*database.Item
	runItems []database.RunItem
	nextID   int
}

func newMockItemRepository() *mockItemRepository {
	return &mockItemRepository{items: make(map[string]*database.Item)}
}

func (m *mockItemRepository) GetItemByFingerprint(feedID, fingerprint string) (*database.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[fingerprint]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (m *mockItemRepository) InsertItem(feedID, fingerprint, title, link string, publishedAt *time.Time, summary string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("item-%d", m.nextID)
	m.items[fingerprint] = &database.Item{
		ID:           id,
		FeedID:       feedID,
		Fingerprint:  fingerprint,
		Title:        title,
		Link:         link,
		PublishedAt:  publishedAt,
		Summary:      summary,
		DiscoveredAt: now,
		LastSeenAt:   now,
	}
	return id, nil
}

func (m *mockItemRepository) RefreshItem(itemID, title, link string, publishedAt *time.Time, summary string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.ID == itemID {
			item.Title = title
			item.Link = link
			item.PublishedAt = publishedAt
			item.Summary = summary
			item.LastSeenAt = seenAt
			return nil
		}
	}
	return fmt.Errorf("item %s not found", itemID)
}

func (m *mockItemRepository) TouchItem(itemID string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.ID == itemID {
			item.LastSeenAt = seenAt
			return nil
		}
	}
	return fmt.Errorf("item %s not found", itemID)
}

func (m *mockItemRepository) AddRunItem(runID, itemID, changeKind string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runItems = append(m.runItems, database.RunItem{
		RunID: runID, ItemID: itemID, ChangeKind: changeKind, SeenAt: seenAt,
	})
	return nil
}

func (m *mockItemRepository) GetVisibleItems(feedName string, limit int) ([]database.Item, error) {
	return nil, nil
}

func (m *mockItemRepository) GetItemCount(feedName string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}
