package feed

import (
	"fmt"
	"testing"
	"time"

	"github.com/pagecomb/pagecomb/app/database"
	"github.com/pagecomb/pagecomb/app/extract"
)

// mockItemRepository is an in-memory item store keyed by fingerprint.
type mockItemRepository struct {
	items    map[string]*database.Item
	runItems []database.RunItem
	nextID   int
	failOn   string
}

func newMockItemRepository() *mockItemRepository {
	return &mockItemRepository{items: make(map[string]*database.Item)}
}

func (m *mockItemRepository) GetItemByFingerprint(feedID, fingerprint string) (*database.Item, error) {
	if m.failOn == "get" {
		return nil, fmt.Errorf("mock lookup failure")
	}
	item, ok := m.items[fingerprint]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (m *mockItemRepository) InsertItem(feedID, fingerprint, title, link string, publishedAt *time.Time, summary string, now time.Time) (string, error) {
	if m.failOn == "insert" {
		return "", fmt.Errorf("mock insert failure")
	}
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
	for _, item := range m.items {
		if item.ID == itemID {
			item.LastSeenAt = seenAt
			return nil
		}
	}
	return fmt.Errorf("item %s not found", itemID)
}

func (m *mockItemRepository) AddRunItem(runID, itemID, changeKind string, seenAt time.Time) error {
	m.runItems = append(m.runItems, database.RunItem{
		RunID: runID, ItemID: itemID, ChangeKind: changeKind, SeenAt: seenAt,
	})
	return nil
}

func (m *mockItemRepository) GetVisibleItems(feedName string, limit int) ([]database.Item, error) {
	return nil, nil
}

func (m *mockItemRepository) GetItemCount(feedName string) (int, error) {
	return len(m.items), nil
}

func TestDeduplicatorClassifiesNewItems(t *testing.T) {
	repo := newMockItemRepository()
	dedup := NewDeduplicator(repo)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	candidates := []extract.Candidate{
		{Title: "First", Link: "https://example.com/first"},
		{Title: "Second", Link: "https://example.com/second"},
	}

	counts, err := dedup.Run("feed-1", "run-1", candidates, now)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if counts.Fetched != 2 || counts.New != 2 || counts.Updated != 0 || counts.Skipped != 0 {
		t.Errorf("Expected 2 fetched / 2 new, got %+v", counts)
	}
	if len(repo.items) != 2 {
		t.Errorf("Expected 2 stored items, got %d", len(repo.items))
	}
	if len(repo.runItems) != 2 {
		t.Fatalf("Expected 2 audit rows, got %d", len(repo.runItems))
	}
	for _, runItem := range repo.runItems {
		if runItem.ChangeKind != database.ChangeKindNew {
			t.Errorf("Expected change kind 'new', got '%s'", runItem.ChangeKind)
		}
		if runItem.RunID != "run-1" {
			t.Errorf("Expected run ID 'run-1', got '%s'", runItem.RunID)
		}
	}
}

func TestDeduplicatorSecondIdenticalRunIsAllUnchanged(t *testing.T) {
	repo := newMockItemRepository()
	dedup := NewDeduplicator(repo)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	candidates := []extract.Candidate{
		{Title: "First", Link: "https://example.com/first"},
		{Title: "Second", Link: "https://example.com/second"},
	}

	if _, err := dedup.Run("feed-1", "run-1", candidates, now); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	later := now.Add(time.Hour)
	counts, err := dedup.Run("feed-1", "run-2", candidates, later)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if counts.New != 0 || counts.Updated != 0 || counts.Skipped != 2 {
		t.Errorf("Expected all unchanged on identical rerun, got %+v", counts)
	}
	if len(repo.items) != 2 {
		t.Errorf("Expected no new items, got %d", len(repo.items))
	}
	for _, item := range repo.items {
		if !item.LastSeenAt.Equal(later) {
			t.Errorf("Expected last seen advanced to %v, got %v", later, item.LastSeenAt)
		}
		if !item.DiscoveredAt.Equal(now) {
			t.Errorf("Expected discovery timestamp untouched, got %v", item.DiscoveredAt)
		}
	}
}

func TestDeduplicatorRefreshesChangedContent(t *testing.T) {
	repo := newMockItemRepository()
	dedup := NewDeduplicator(repo)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	original := []extract.Candidate{{Title: "Draft Title", Link: "https://example.com/post"}}
	if _, err := dedup.Run("feed-1", "run-1", original, now); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	// Same link, updated title: identity is preserved, content is refreshed
	updated := []extract.Candidate{{Title: "Final Title", Link: "https://example.com/post"}}
	counts, err := dedup.Run("feed-1", "run-2", updated, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if counts.Updated != 1 || counts.New != 0 || counts.Skipped != 0 {
		t.Errorf("Expected 1 refreshed, got %+v", counts)
	}
	if len(repo.items) != 1 {
		t.Fatalf("Expected the same stored item, got %d items", len(repo.items))
	}
	for _, item := range repo.items {
		if item.Title != "Final Title" {
			t.Errorf("Expected title refreshed, got '%s'", item.Title)
		}
		if !item.DiscoveredAt.Equal(now) {
			t.Errorf("Expected discovery timestamp untouched, got %v", item.DiscoveredAt)
		}
	}

	lastAudit := repo.runItems[len(repo.runItems)-1]
	if lastAudit.ChangeKind != database.ChangeKindRefreshed {
		t.Errorf("Expected change kind 'refreshed', got '%s'", lastAudit.ChangeKind)
	}
}

func TestDeduplicatorPublishedDateChangeIsRefresh(t *testing.T) {
	repo := newMockItemRepository()
	dedup := NewDeduplicator(repo)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	published := now.Add(-24 * time.Hour)
	first := []extract.Candidate{{Title: "Post", Link: "https://example.com/post"}}
	second := []extract.Candidate{{Title: "Post", Link: "https://example.com/post", PublishedAt: &published}}

	if _, err := dedup.Run("feed-1", "run-1", first, now); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	counts, err := dedup.Run("feed-1", "run-2", second, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if counts.Updated != 1 {
		t.Errorf("Expected a published date appearing to count as refresh, got %+v", counts)
	}
}

func TestDeduplicatorPartialCountsOnFailure(t *testing.T) {
	repo := newMockItemRepository()
	dedup := NewDeduplicator(repo)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	if _, err := dedup.Run("feed-1", "run-1", []extract.Candidate{
		{Title: "Existing", Link: "https://example.com/existing"},
	}, now); err != nil {
		t.Fatalf("Seed run failed: %v", err)
	}

	repo.failOn = "insert"
	counts, err := dedup.Run("feed-1", "run-2", []extract.Candidate{
		{Title: "Existing", Link: "https://example.com/existing"},
		{Title: "Broken", Link: "https://example.com/broken"},
	}, now.Add(time.Hour))

	if err == nil {
		t.Fatal("Expected an error from the failing insert")
	}
	if counts.Fetched != 2 {
		t.Errorf("Expected fetched count preserved, got %d", counts.Fetched)
	}
	if counts.Skipped != 1 {
		t.Errorf("Expected progress before the failure kept, got %+v", counts)
	}
}
