package database

import (
	"database/sql"
	"fmt"
	"time"
)

// FeedRepositoryImpl handles database operations for feeds
type FeedRepositoryImpl struct {
	db *DB
}

var _ FeedRepository = (*FeedRepositoryImpl)(nil)

// NewFeedRepository creates a new feed repository
func NewFeedRepository(db *DB) *FeedRepositoryImpl {
	return &FeedRepositoryImpl{db: db}
}

const feedColumns = `id, name, source_url, title, mode,
       sel_list_container, sel_item, sel_title, sel_link, sel_published, sel_summary,
       interval_unit, interval_value, ttl_minutes, etag, last_modified, enabled,
       next_parse_after, last_parsed_at, last_parse_status, created_at, updated_at`

func scanFeed(row interface{ Scan(...interface{}) error }) (*Feed, error) {
	var feed Feed
	err := row.Scan(
		&feed.ID, &feed.Name, &feed.SourceURL, &feed.Title, &feed.Mode,
		&feed.Selectors.ListContainer, &feed.Selectors.Item, &feed.Selectors.Title,
		&feed.Selectors.Link, &feed.Selectors.Published, &feed.Selectors.Summary,
		&feed.IntervalUnit, &feed.IntervalValue, &feed.TtlMinutes,
		&feed.Etag, &feed.LastModified, &feed.Enabled,
		&feed.NextParseAfter, &feed.LastParsedAt, &feed.LastParseStatus,
		&feed.CreatedAt, &feed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &feed, nil
}

// UpsertFeed inserts or updates a feed definition, reporting whether the
// source URL changed for an existing feed.
func (r *FeedRepositoryImpl) UpsertFeed(feed Feed) (string, bool, error) {
	existing, err := r.GetFeed(feed.Name)
	if err != nil {
		return "", false, fmt.Errorf("failed to check existing feed: %w", err)
	}

	urlChanged := existing != nil && existing.SourceURL != feed.SourceURL

	var dbID string
	err = r.db.QueryRow(`
		INSERT INTO feeds (name, source_url, title, mode,
			sel_list_container, sel_item, sel_title, sel_link, sel_published, sel_summary,
			interval_unit, interval_value, ttl_minutes, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (name) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			title = EXCLUDED.title,
			mode = EXCLUDED.mode,
			sel_list_container = EXCLUDED.sel_list_container,
			sel_item = EXCLUDED.sel_item,
			sel_title = EXCLUDED.sel_title,
			sel_link = EXCLUDED.sel_link,
			sel_published = EXCLUDED.sel_published,
			sel_summary = EXCLUDED.sel_summary,
			interval_unit = EXCLUDED.interval_unit,
			interval_value = EXCLUDED.interval_value,
			ttl_minutes = EXCLUDED.ttl_minutes,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()
		RETURNING id
	`, feed.Name, feed.SourceURL, feed.Title, feed.Mode,
		feed.Selectors.ListContainer, feed.Selectors.Item, feed.Selectors.Title,
		feed.Selectors.Link, feed.Selectors.Published, feed.Selectors.Summary,
		feed.IntervalUnit, feed.IntervalValue, feed.TtlMinutes, feed.Enabled).Scan(&dbID)

	if err != nil {
		return "", false, fmt.Errorf("failed to upsert feed: %w", err)
	}

	return dbID, urlChanged, nil
}

// GetFeed retrieves a feed by its name
func (r *FeedRepositoryImpl) GetFeed(feedName string) (*Feed, error) {
	feed, err := scanFeed(r.db.QueryRow(`
		SELECT `+feedColumns+`
		FROM feeds
		WHERE name = $1
	`, feedName))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	return feed, nil
}

// GetAllFeeds returns every registered feed ordered by name
func (r *FeedRepositoryImpl) GetAllFeeds() ([]Feed, error) {
	rows, err := r.db.Query(`
		SELECT ` + feedColumns + `
		FROM feeds
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}

// GetDueFeeds returns enabled feeds whose schedule has elapsed and which have
// no scheduled/running parse run. The limit bounds one tick's dispatch.
func (r *FeedRepositoryImpl) GetDueFeeds(now time.Time, limit int) ([]Feed, error) {
	rows, err := r.db.Query(`
		SELECT `+feedColumns+`
		FROM feeds
		WHERE enabled = TRUE
		  AND (next_parse_after IS NULL OR next_parse_after <= $1)
		  AND NOT EXISTS (
		    SELECT 1 FROM parse_runs
		    WHERE parse_runs.feed_id = feeds.id
		      AND parse_runs.status IN ('scheduled', 'running')
		  )
		ORDER BY COALESCE(next_parse_after, '1970-01-01'::timestamptz)
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}

// UpdateScheduleState advances the feed's schedule after a terminal run.
// Nil validators keep the stored etag/last_modified (the 304 path).
func (r *FeedRepositoryImpl) UpdateScheduleState(feedID string, state ScheduleState) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET next_parse_after = $2,
		    last_parsed_at = $3,
		    last_parse_status = $4,
		    etag = COALESCE($5, etag),
		    last_modified = COALESCE($6, last_modified),
		    updated_at = NOW()
		WHERE id = $1
	`, feedID, state.NextParseAfter, state.LastParsedAt, state.LastParseStatus,
		state.Etag, state.LastModified)

	if err != nil {
		return fmt.Errorf("failed to update schedule state: %w", err)
	}

	return nil
}

// GetFeedCount returns the total number of feeds
func (r *FeedRepositoryImpl) GetFeedCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

// GetEnabledFeedCount returns the count of enabled feeds
func (r *FeedRepositoryImpl) GetEnabledFeedCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM feeds WHERE enabled = TRUE").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get enabled feed count: %w", err)
	}
	return count, nil
}
