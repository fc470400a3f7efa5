package database

import (
	"database/sql"
	"fmt"
	"time"
)

// ItemRepositoryImpl handles database operations for feed items
type ItemRepositoryImpl struct {
	db *DB
}

var _ ItemRepository = (*ItemRepositoryImpl)(nil)

// NewItemRepository creates a new item repository
func NewItemRepository(db *DB) *ItemRepositoryImpl {
	return &ItemRepositoryImpl{db: db}
}

// GetItemByFingerprint looks up an item by its identity key within a feed
func (r *ItemRepositoryImpl) GetItemByFingerprint(feedID, fingerprint string) (*Item, error) {
	var item Item
	err := r.db.QueryRow(`
		SELECT id, feed_id, fingerprint, title, link, published_at, summary,
		       discovered_at, last_seen_at
		FROM feed_items
		WHERE feed_id = $1 AND fingerprint = $2
	`, feedID, fingerprint).Scan(
		&item.ID, &item.FeedID, &item.Fingerprint, &item.Title, &item.Link,
		&item.PublishedAt, &item.Summary, &item.DiscoveredAt, &item.LastSeenAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item by fingerprint: %w", err)
	}

	return &item, nil
}

// InsertItem stores a newly discovered item and returns its database ID
func (r *ItemRepositoryImpl) InsertItem(feedID, fingerprint, title, link string, publishedAt *time.Time, summary string, now time.Time) (string, error) {
	var itemID string
	err := r.db.QueryRow(`
		INSERT INTO feed_items (feed_id, fingerprint, title, link, published_at, summary, discovered_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id
	`, feedID, fingerprint, title, link, publishedAt, summary, now).Scan(&itemID)

	if err != nil {
		return "", fmt.Errorf("failed to insert item: %w", err)
	}

	return itemID, nil
}

// RefreshItem overwrites the mutable fields of an existing item.
// discovered_at and fingerprint are never touched.
func (r *ItemRepositoryImpl) RefreshItem(itemID, title, link string, publishedAt *time.Time, summary string, seenAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE feed_items
		SET title = $2, link = $3, published_at = $4, summary = $5, last_seen_at = $6
		WHERE id = $1
	`, itemID, title, link, publishedAt, summary, seenAt)

	if err != nil {
		return fmt.Errorf("failed to refresh item: %w", err)
	}

	return nil
}

// TouchItem updates only the last seen timestamp of an unchanged item
func (r *ItemRepositoryImpl) TouchItem(itemID string, seenAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE feed_items
		SET last_seen_at = $2
		WHERE id = $1
	`, itemID, seenAt)

	if err != nil {
		return fmt.Errorf("failed to touch item: %w", err)
	}

	return nil
}

// AddRunItem records one audit row per candidate per run
func (r *ItemRepositoryImpl) AddRunItem(runID, itemID, changeKind string, seenAt time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO parse_run_items (run_id, item_id, change_kind, seen_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, item_id) DO NOTHING
	`, runID, itemID, changeKind, seenAt)

	if err != nil {
		return fmt.Errorf("failed to add run item: %w", err)
	}

	return nil
}

// GetVisibleItems returns items for a feed ordered by publish date descending
func (r *ItemRepositoryImpl) GetVisibleItems(feedName string, limit int) ([]Item, error) {
	rows, err := r.db.Query(`
		SELECT i.id, i.feed_id, i.fingerprint, i.title, i.link,
		       i.published_at, i.summary, i.discovered_at, i.last_seen_at
		FROM feed_items i
		JOIN feeds f ON f.id = i.feed_id
		WHERE f.name = $1
		ORDER BY COALESCE(i.published_at, i.discovered_at) DESC
		LIMIT $2
	`, feedName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get visible items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		err := rows.Scan(
			&item.ID, &item.FeedID, &item.Fingerprint, &item.Title, &item.Link,
			&item.PublishedAt, &item.Summary, &item.DiscoveredAt, &item.LastSeenAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

// GetItemCount returns the total number of items for a feed
func (r *ItemRepositoryImpl) GetItemCount(feedName string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*)
		FROM feed_items i
		JOIN feeds f ON f.id = i.feed_id
		WHERE f.name = $1
	`, feedName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}
