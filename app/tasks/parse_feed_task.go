package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagecomb/pagecomb/app/database"
	"github.com/pagecomb/pagecomb/app/extract"
	"github.com/pagecomb/pagecomb/app/feed"
	"github.com/pagecomb/pagecomb/app/fetch"
	"github.com/pagecomb/pagecomb/app/telemetry"
)

// ParseFeedTask runs the full pipeline for one feed: fetch, extract,
// deduplicate, record the run outcome and advance the schedule. Every
// pipeline error is absorbed into the run record; nothing here may take
// down a worker or touch another feed.
type ParseFeedTask struct {
	Task
	Feed         database.Feed
	Run          *database.ParseRun
	fetcher      *fetch.Fetcher
	extractor    *extract.Extractor
	feedSource   *extract.FeedSource
	deduplicator *feed.Deduplicator
	feedRepo     database.FeedRepository
	runRepo      database.RunRepository
	sink         telemetry.Sink
}

func NewParseFeedTask(dbFeed database.Feed, run *database.ParseRun, fetcher *fetch.Fetcher,
	extractor *extract.Extractor, feedSource *extract.FeedSource, deduplicator *feed.Deduplicator,
	feedRepo database.FeedRepository, runRepo database.RunRepository, sink telemetry.Sink) *ParseFeedTask {
	return &ParseFeedTask{
		Task:         NewTask(TaskTypeParseFeed, dbFeed.Name),
		Feed:         dbFeed,
		Run:          run,
		fetcher:      fetcher,
		extractor:    extractor,
		feedSource:   feedSource,
		deduplicator: deduplicator,
		feedRepo:     feedRepo,
		runRepo:      runRepo,
		sink:         sink,
	}
}

func (t *ParseFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		// The claimed run must still reach a terminal state, or the feed
		// stays locked behind it after a restart.
		result := database.RunResult{
			Status:        database.RunStatusFailed,
			CompletedAt:   time.Now().UTC(),
			FailureReason: "canceled",
		}
		if err := t.runRepo.CompleteRun(t.Run.ID, result); err != nil {
			return fmt.Errorf("failed to close canceled run: %w", err)
		}
		if err := t.advanceSchedule(result); err != nil {
			return fmt.Errorf("failed to advance schedule: %w", err)
		}
		return ctx.Err()
	default:
	}

	if err := t.runRepo.MarkRunning(t.Run.ID); err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}

	result := t.pipeline(ctx)
	result.CompletedAt = time.Now().UTC()

	if err := t.runRepo.CompleteRun(t.Run.ID, result); err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	if err := t.advanceSchedule(result); err != nil {
		return fmt.Errorf("failed to advance schedule: %w", err)
	}

	t.sink.RunComplete(t.FeedName, result.Status, result.FetchedCount, result.NewCount,
		result.UpdatedCount, result.SkippedCount, result.RetryCount, result.CircuitOpen)

	return nil
}

// pipeline produces the terminal run result. Failures come back as a failed
// result with a sanitized reason, never as an error.
func (t *ParseFeedTask) pipeline(ctx context.Context) database.RunResult {
	t.sink.FetchStart(t.FeedName)
	fetchStart := time.Now()

	res, err := t.fetcher.Run(ctx, fetch.Request{
		URL:          t.Feed.SourceURL,
		Etag:         t.Feed.Etag,
		LastModified: t.Feed.LastModified,
	})
	if err != nil {
		return fetchFailure(err)
	}

	t.sink.FetchEnd(t.FeedName, res.StatusCode, time.Since(fetchStart))

	status := res.StatusCode
	if res.NotModified {
		// Existing items are implicitly unchanged, validators stay as stored.
		return database.RunResult{
			Status:     database.RunStatusSucceeded,
			HTTPStatus: &status,
			RetryCount: res.Retries,
		}
	}

	candidates, err := t.extractCandidates(res)
	if err != nil {
		reason := "extract-error"
		if errors.Is(err, extract.ErrSelectorMismatch) {
			reason = "selector-mismatch"
		}
		return database.RunResult{
			Status:        database.RunStatusFailed,
			HTTPStatus:    &status,
			FailureReason: reason,
			RetryCount:    res.Retries,
		}
	}

	t.sink.ExtractEnd(t.FeedName, len(candidates))

	counts, err := t.deduplicator.Run(t.Feed.ID, t.Run.ID, candidates, time.Now().UTC())
	if err != nil {
		return database.RunResult{
			Status:        database.RunStatusFailed,
			HTTPStatus:    &status,
			FailureReason: "storage-error",
			FetchedCount:  counts.Fetched,
			NewCount:      counts.New,
			UpdatedCount:  counts.Updated,
			SkippedCount:  counts.Skipped,
			RetryCount:    res.Retries,
		}
	}

	return database.RunResult{
		Status:               database.RunStatusSucceeded,
		HTTPStatus:           &status,
		FetchedCount:         counts.Fetched,
		NewCount:             counts.New,
		UpdatedCount:         counts.Updated,
		SkippedCount:         counts.Skipped,
		RetryCount:           res.Retries,
		ResponseEtag:         res.Etag,
		ResponseLastModified: res.LastModified,
	}
}

func (t *ParseFeedTask) extractCandidates(res *fetch.Result) ([]extract.Candidate, error) {
	switch t.Feed.Mode {
	case database.ModeFeed:
		return t.feedSource.Run(res.Body)
	case database.ModeAuto:
		if extract.LooksLikeFeed(res.ContentType, res.Body) {
			return t.feedSource.Run(res.Body)
		}
	}
	return t.extractor.Run(res.Body, t.Feed.SourceURL, t.Feed.Selectors)
}

// advanceSchedule runs after every terminal run, success or failure, so a
// broken feed keeps its place in the rotation instead of hot-looping.
func (t *ParseFeedTask) advanceSchedule(result database.RunResult) error {
	state := database.ScheduleState{
		NextParseAfter:  feed.NextParseAfter(result.CompletedAt, t.Feed.IntervalUnit, t.Feed.IntervalValue),
		LastParsedAt:    result.CompletedAt,
		LastParseStatus: result.Status,
	}

	// Validators move only on a 2xx success; a 304 keeps the stored pair.
	if result.Status == database.RunStatusSucceeded && result.HTTPStatus != nil &&
		*result.HTTPStatus >= 200 && *result.HTTPStatus < 300 {
		state.Etag = &result.ResponseEtag
		state.LastModified = &result.ResponseLastModified
	}

	return t.feedRepo.UpdateScheduleState(t.Feed.ID, state)
}

func fetchFailure(err error) database.RunResult {
	if errors.Is(err, fetch.ErrCircuitOpen) {
		return database.RunResult{
			Status:        database.RunStatusFailed,
			FailureReason: "circuit-open",
			CircuitOpen:   true,
		}
	}

	var fetchErr *fetch.Error
	if errors.As(err, &fetchErr) {
		result := database.RunResult{
			Status:        database.RunStatusFailed,
			FailureReason: fetchErr.Reason,
			RetryCount:    fetchErr.Retries,
		}
		if fetchErr.Status != 0 {
			status := fetchErr.Status
			result.HTTPStatus = &status
		}
		return result
	}

	return database.RunResult{
		Status:        database.RunStatusFailed,
		FailureReason: "fetch-error",
	}
}
