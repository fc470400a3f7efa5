package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrRunActive is returned when a scheduled or running parse run already
// exists for the feed. Creation and the exclusivity check are a single
// atomic operation backed by a partial unique index.
var ErrRunActive = errors.New("an active parse run already exists for this feed")

// RunRepositoryImpl handles database operations for parse runs
type RunRepositoryImpl struct {
	db *DB
}

var _ RunRepository = (*RunRepositoryImpl)(nil)

// NewRunRepository creates a new parse run repository
func NewRunRepository(db *DB) *RunRepositoryImpl {
	return &RunRepositoryImpl{db: db}
}

const runColumns = `id, feed_id, status, started_at, completed_at, http_status,
       failure_reason, fetched_count, new_count, updated_count, skipped_count,
       retry_count, circuit_open, response_etag, response_last_modified`

func scanRun(row interface{ Scan(...interface{}) error }) (*ParseRun, error) {
	var run ParseRun
	err := row.Scan(
		&run.ID, &run.FeedID, &run.Status, &run.StartedAt, &run.CompletedAt,
		&run.HTTPStatus, &run.FailureReason, &run.FetchedCount, &run.NewCount,
		&run.UpdatedCount, &run.SkippedCount, &run.RetryCount, &run.CircuitOpen,
		&run.ResponseEtag, &run.ResponseLastModified,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CreateRun inserts a parse run in the scheduled state. The partial unique
// index on (feed_id) over active statuses turns a concurrent double-create
// into a unique violation, reported as ErrRunActive.
func (r *RunRepositoryImpl) CreateRun(feedID string) (*ParseRun, error) {
	var run ParseRun
	err := r.db.QueryRow(`
		INSERT INTO parse_runs (feed_id, status)
		VALUES ($1, $2)
		RETURNING id, feed_id, status, started_at
	`, feedID, RunStatusScheduled).Scan(&run.ID, &run.FeedID, &run.Status, &run.StartedAt)

	if isUniqueViolation(err) {
		return nil, ErrRunActive
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create parse run: %w", err)
	}

	return &run, nil
}

// MarkRunning transitions a scheduled run to running
func (r *RunRepositoryImpl) MarkRunning(runID string) error {
	result, err := r.db.Exec(`
		UPDATE parse_runs
		SET status = $2
		WHERE id = $1 AND status = $3
	`, runID, RunStatusRunning, RunStatusScheduled)
	if err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s is not in the scheduled state", runID)
	}

	return nil
}

// CompleteRun records the terminal outcome of a run. Only scheduled/running
// rows are eligible, terminal rows stay immutable.
func (r *RunRepositoryImpl) CompleteRun(runID string, res RunResult) error {
	result, err := r.db.Exec(`
		UPDATE parse_runs
		SET status = $2,
		    completed_at = $3,
		    http_status = $4,
		    failure_reason = $5,
		    fetched_count = $6,
		    new_count = $7,
		    updated_count = $8,
		    skipped_count = $9,
		    retry_count = $10,
		    circuit_open = $11,
		    response_etag = $12,
		    response_last_modified = $13
		WHERE id = $1 AND status IN ($14, $15)
	`, runID, res.Status, res.CompletedAt, res.HTTPStatus, res.FailureReason,
		res.FetchedCount, res.NewCount, res.UpdatedCount, res.SkippedCount,
		res.RetryCount, res.CircuitOpen, res.ResponseEtag, res.ResponseLastModified,
		RunStatusScheduled, RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s is not active", runID)
	}

	return nil
}

// FailOrphanedRuns closes every run still in an active state. Only safe to
// call while no workers are running, i.e. before the scheduler starts.
func (r *RunRepositoryImpl) FailOrphanedRuns(reason string) (int, error) {
	result, err := r.db.Exec(`
		UPDATE parse_runs
		SET status = $1,
		    completed_at = NOW(),
		    failure_reason = $2
		WHERE status IN ($3, $4)
	`, RunStatusFailed, reason, RunStatusScheduled, RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to close orphaned runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(affected), nil
}

// GetActiveRun returns the scheduled/running run for a feed, if any
func (r *RunRepositoryImpl) GetActiveRun(feedID string) (*ParseRun, error) {
	run, err := scanRun(r.db.QueryRow(`
		SELECT `+runColumns+`
		FROM parse_runs
		WHERE feed_id = $1 AND status IN ($2, $3)
	`, feedID, RunStatusScheduled, RunStatusRunning))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active run: %w", err)
	}

	return run, nil
}

// GetRecentRuns returns the most recent runs for a feed, newest first
func (r *RunRepositoryImpl) GetRecentRuns(feedID string, limit int) ([]ParseRun, error) {
	rows, err := r.db.Query(`
		SELECT `+runColumns+`
		FROM parse_runs
		WHERE feed_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent runs: %w", err)
	}
	defer rows.Close()

	var runs []ParseRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

// GetRunStats returns aggregate run counts across all feeds
func (r *RunRepositoryImpl) GetRunStats() (total, succeeded, failed int, err error) {
	err = r.db.QueryRow(`
		SELECT
			COUNT(*) as total,
			COUNT(*) FILTER (WHERE status = $1) as succeeded,
			COUNT(*) FILTER (WHERE status = $2) as failed
		FROM parse_runs
	`, RunStatusSucceeded, RunStatusFailed).Scan(&total, &succeeded, &failed)

	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to get run stats: %w", err)
	}

	return total, succeeded, failed, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
