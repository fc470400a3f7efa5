package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pagecomb/pagecomb/app/cache"
	"github.com/pagecomb/pagecomb/app/cfg"
	"github.com/pagecomb/pagecomb/app/database"
	"github.com/pagecomb/pagecomb/app/extract"
	"github.com/pagecomb/pagecomb/app/feed"
	"github.com/pagecomb/pagecomb/app/fetch"
	"github.com/pagecomb/pagecomb/app/telemetry"
)

// Errors surfaced to the manual trigger caller. These are the only pipeline
// outcomes that escape synchronously; everything else lands on the run record.
var (
	ErrFeedNotFound       = errors.New("feed not found")
	ErrParseAlreadyQueued = errors.New("a parse run is already queued or running for this feed")
	ErrRateLimitExceeded  = errors.New("manual trigger rate limit exceeded")
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	feedRepo        database.FeedRepository
	runRepo         database.RunRepository
	fetcher         *fetch.Fetcher
	extractor       *extract.Extractor
	feedSource      *extract.FeedSource
	deduplicator    *feed.Deduplicator
	cooldowns       cache.CooldownStore
	sink            telemetry.Sink
	interval        time.Duration
	workerCount     int
	triggerCooldown time.Duration
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	busy            atomic.Int32
	taskQueue       chan TaskInterface
}

func NewScheduler(feedRepo database.FeedRepository, runRepo database.RunRepository,
	fetcher *fetch.Fetcher, extractor *extract.Extractor, feedSource *extract.FeedSource,
	deduplicator *feed.Deduplicator, cooldowns cache.CooldownStore, sink telemetry.Sink) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	c := cfg.Get()

	return &Scheduler{
		feedRepo:        feedRepo,
		runRepo:         runRepo,
		fetcher:         fetcher,
		extractor:       extractor,
		feedSource:      feedSource,
		deduplicator:    deduplicator,
		cooldowns:       cooldowns,
		sink:            sink,
		interval:        time.Duration(c.SchedulerInterval) * time.Second,
		workerCount:     c.WorkerCount,
		triggerCooldown: time.Duration(c.TriggerCooldown) * time.Second,
		ctx:             ctx,
		cancel:          cancel,
		taskQueue:       make(chan TaskInterface, c.WorkerCount),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop shuts the pool down and closes every claimed run still sitting in the
// queue, so no feed stays locked behind a scheduled row across a restart.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)

	for task := range s.taskQueue {
		parseTask, ok := task.(*ParseFeedTask)
		if !ok {
			continue
		}
		slog.Info("Aborting queued run on shutdown", "feed", parseTask.Feed.Name,
			"run_id", parseTask.Run.ID)
		s.abortRun(parseTask.Feed, parseTask.Run, "canceled")
	}
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// tick selects due feeds up to the free worker slots and dispatches them.
// Excess due feeds simply wait for the next tick, so the backlog never grows
// beyond the pool.
func (s *Scheduler) tick() {
	freeSlots := s.workerCount - int(s.busy.Load()) - len(s.taskQueue)
	if freeSlots <= 0 {
		slog.Debug("No free worker slots, skipping tick")
		return
	}

	dueFeeds, err := s.feedRepo.GetDueFeeds(time.Now().UTC(), freeSlots)
	if err != nil {
		slog.Error("Failed to get due feeds", "error", err)
		return
	}
	if len(dueFeeds) == 0 {
		slog.Debug("No feeds due for parsing")
		return
	}

	slog.Debug("Dispatching due feeds", "count", len(dueFeeds), "free_slots", freeSlots)

	for _, dueFeed := range dueFeeds {
		if err := s.dispatch(dueFeed); err != nil {
			if errors.Is(err, database.ErrRunActive) {
				slog.Debug("Feed already has an active run, skipping", "feed", dueFeed.Name)
				continue
			}
			slog.Warn("Failed to dispatch feed", "feed", dueFeed.Name, "error", err)
		}
	}
}

// dispatch atomically claims the feed by creating its scheduled run, then
// hands the task to the pool. The run row is the mutual exclusion token: a
// concurrent claim loses with ErrRunActive.
func (s *Scheduler) dispatch(dbFeed database.Feed) error {
	run, err := s.runRepo.CreateRun(dbFeed.ID)
	if err != nil {
		return err
	}

	task := NewParseFeedTask(dbFeed, run, s.fetcher, s.extractor, s.feedSource,
		s.deduplicator, s.feedRepo, s.runRepo, s.sink)

	if err := s.EnqueueTask(task); err != nil {
		s.abortRun(dbFeed, run, "queue-full")
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	return nil
}

// TriggerManual creates a parse run outside the normal schedule. Rejections
// (ErrParseAlreadyQueued, ErrRateLimitExceeded) are returned to the caller
// and never recorded as run failures.
func (s *Scheduler) TriggerManual(ctx context.Context, feedName string) (*database.ParseRun, error) {
	dbFeed, err := s.feedRepo.GetFeed(feedName)
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	if dbFeed == nil {
		return nil, ErrFeedNotFound
	}

	active, err := s.runRepo.GetActiveRun(dbFeed.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active run: %w", err)
	}
	if active != nil {
		return nil, ErrParseAlreadyQueued
	}

	cooldownKey := "trigger:" + dbFeed.Name
	ok, err := s.cooldowns.SetIfAbsent(ctx, cooldownKey, s.triggerCooldown)
	if err != nil {
		return nil, fmt.Errorf("failed to check trigger cooldown: %w", err)
	}
	if !ok {
		return nil, ErrRateLimitExceeded
	}

	run, err := s.runRepo.CreateRun(dbFeed.ID)
	if err != nil {
		s.releaseCooldown(ctx, cooldownKey)
		if errors.Is(err, database.ErrRunActive) {
			// Lost the race against the tick loop or another trigger.
			return nil, ErrParseAlreadyQueued
		}
		return nil, err
	}

	task := NewParseFeedTask(*dbFeed, run, s.fetcher, s.extractor, s.feedSource,
		s.deduplicator, s.feedRepo, s.runRepo, s.sink)

	if err := s.EnqueueTask(task); err != nil {
		s.releaseCooldown(ctx, cooldownKey)
		s.abortRun(*dbFeed, run, "queue-full")
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	slog.Info("Manual parse triggered", "feed", dbFeed.Name, "run_id", run.ID)

	return run, nil
}

// releaseCooldown frees a consumed trigger window when the trigger did not
// actually start a run, so the rejection does not burn the caller's slot.
func (s *Scheduler) releaseCooldown(ctx context.Context, key string) {
	if err := s.cooldowns.Delete(ctx, key); err != nil {
		slog.Warn("Failed to release trigger cooldown", "key", key, "error", err)
	}
}

// abortRun closes a claimed run that never reached a worker, so the feed
// does not stay locked behind a phantom scheduled row.
func (s *Scheduler) abortRun(dbFeed database.Feed, run *database.ParseRun, reason string) {
	now := time.Now().UTC()
	result := database.RunResult{
		Status:        database.RunStatusFailed,
		CompletedAt:   now,
		FailureReason: reason,
	}
	if err := s.runRepo.CompleteRun(run.ID, result); err != nil {
		slog.Error("Failed to abort run", "feed", dbFeed.Name, "run_id", run.ID, "error", err)
		return
	}

	state := database.ScheduleState{
		NextParseAfter:  feed.NextParseAfter(now, dbFeed.IntervalUnit, dbFeed.IntervalValue),
		LastParsedAt:    now,
		LastParseStatus: database.RunStatusFailed,
	}
	if err := s.feedRepo.UpdateScheduleState(dbFeed.ID, state); err != nil {
		slog.Error("Failed to advance schedule for aborted run", "feed", dbFeed.Name, "error", err)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	s.busy.Add(1)
	defer s.busy.Add(-1)

	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	if err := task.Execute(taskCtx); err != nil {
		// A failed run is terminal; the feed comes back at its next
		// scheduled time. Only the bookkeeping error is logged here.
		slog.Error("Worker task execution failed", "worker_id", workerID,
			"type", string(task.GetType()), "id", task.GetID(),
			"feed", task.GetFeedName(), "error", err)
		return
	}

	slog.Debug("Worker task finished", "worker_id", workerID,
		"type", string(task.GetType()), "feed", task.GetFeedName(),
		"duration", task.GetDuration().String())
}
