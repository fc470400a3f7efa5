package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagecomb/pagecomb/app/database"
	"github.com/pagecomb/pagecomb/app/fetch"
	"github.com/pagecomb/pagecomb/app/tasks"
)

const defaultItemLimit = 50

// Handler serves the engine's HTTP surface: rendered feed output, the
// manual trigger gateway, and introspection endpoints.
type Handler struct {
	feedRepo  database.FeedRepository
	runRepo   database.RunRepository
	itemRepo  database.ItemRepository
	scheduler tasks.TaskSchedulerInterface
	breaker   *fetch.BreakerRegistry
	generator *RSSGenerator
	baseURL   string
}

func NewHandler(feedRepo database.FeedRepository, runRepo database.RunRepository,
	itemRepo database.ItemRepository, scheduler tasks.TaskSchedulerInterface,
	breaker *fetch.BreakerRegistry, baseURL string) *Handler {
	return &Handler{
		feedRepo:  feedRepo,
		runRepo:   runRepo,
		itemRepo:  itemRepo,
		scheduler: scheduler,
		breaker:   breaker,
		generator: NewRSSGenerator(baseURL),
		baseURL:   baseURL,
	}
}

// GetFeedRSS renders a feed's stored items as RSS 2.0
func (h *Handler) GetFeedRSS(c *gin.Context) {
	feedName := c.Param("name")

	dbFeed, err := h.feedRepo.GetFeed(feedName)
	if err != nil {
		slog.Error("Failed to get feed", "feed", feedName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if dbFeed == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
		return
	}

	items, err := h.itemRepo.GetVisibleItems(feedName, defaultItemLimit)
	if err != nil {
		slog.Error("Failed to get items", "feed", feedName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	rss := h.generator.Generate(*dbFeed, items)
	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.String(http.StatusOK, rss)
}

// TriggerParse accepts an out-of-band manual parse request for a feed
func (h *Handler) TriggerParse(c *gin.Context) {
	feedName := c.Param("name")

	run, err := h.scheduler.TriggerManual(c.Request.Context(), feedName)
	switch {
	case errors.Is(err, tasks.ErrFeedNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
		return
	case errors.Is(err, tasks.ErrParseAlreadyQueued):
		c.JSON(http.StatusConflict, gin.H{"error": "a parse run is already queued or running"})
		return
	case errors.Is(err, tasks.ErrRateLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "manual trigger rate limit exceeded"})
		return
	case err != nil:
		slog.Error("Failed to trigger manual parse", "feed", feedName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusAccepted, TriggerResponse{
		RunID:  run.ID,
		Status: run.Status,
	})
}

// ListFeeds returns all registered feeds with their schedule state
func (h *Handler) ListFeeds(c *gin.Context) {
	feeds, err := h.feedRepo.GetAllFeeds()
	if err != nil {
		slog.Error("Failed to list feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	responses := make([]FeedResponse, 0, len(feeds))
	for _, dbFeed := range feeds {
		itemCount, err := h.itemRepo.GetItemCount(dbFeed.Name)
		if err != nil {
			slog.Warn("Failed to get item count", "feed", dbFeed.Name, "error", err)
		}

		responses = append(responses, FeedResponse{
			Name:            dbFeed.Name,
			SourceURL:       dbFeed.SourceURL,
			Title:           dbFeed.Title,
			Mode:            dbFeed.Mode,
			Enabled:         dbFeed.Enabled,
			IntervalUnit:    dbFeed.IntervalUnit,
			IntervalValue:   dbFeed.IntervalValue,
			NextParseAfter:  dbFeed.NextParseAfter,
			LastParsedAt:    dbFeed.LastParsedAt,
			LastParseStatus: dbFeed.LastParseStatus,
			ItemCount:       itemCount,
		})
	}

	c.JSON(http.StatusOK, gin.H{"feeds": responses})
}

// GetFeedRuns returns the recent parse run history for a feed
func (h *Handler) GetFeedRuns(c *gin.Context) {
	feedName := c.Param("name")

	dbFeed, err := h.feedRepo.GetFeed(feedName)
	if err != nil {
		slog.Error("Failed to get feed", "feed", feedName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if dbFeed == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
		return
	}

	runs, err := h.runRepo.GetRecentRuns(dbFeed.ID, 20)
	if err != nil {
		slog.Error("Failed to get runs", "feed", feedName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	responses := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		responses = append(responses, RunResponse{
			ID:            run.ID,
			Status:        run.Status,
			StartedAt:     run.StartedAt,
			CompletedAt:   run.CompletedAt,
			HTTPStatus:    run.HTTPStatus,
			FailureReason: run.FailureReason,
			FetchedCount:  run.FetchedCount,
			NewCount:      run.NewCount,
			UpdatedCount:  run.UpdatedCount,
			SkippedCount:  run.SkippedCount,
			RetryCount:    run.RetryCount,
			CircuitOpen:   run.CircuitOpen,
		})
	}

	c.JSON(http.StatusOK, gin.H{"feed": feedName, "runs": responses})
}

// HealthCheck reports basic liveness and feed counts
func (h *Handler) HealthCheck(c *gin.Context) {
	feedCount, err := h.feedRepo.GetFeedCount()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unreachable"})
		return
	}

	enabledCount, _ := h.feedRepo.GetEnabledFeedCount()

	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"feeds":         feedCount,
		"enabled_feeds": enabledCount,
	})
}

// GetStats reports run totals and circuit breaker state per host
func (h *Handler) GetStats(c *gin.Context) {
	total, succeeded, failed, err := h.runRepo.GetRunStats()
	if err != nil {
		slog.Error("Failed to get run stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	breakers := make([]BreakerResponse, 0)
	for _, status := range h.breaker.Snapshot() {
		breakers = append(breakers, BreakerResponse{
			Host:                status.Host,
			State:               status.State,
			ConsecutiveFailures: status.ConsecutiveFailures,
			OpenedAt:            status.OpenedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"runs": gin.H{
			"total":     total,
			"succeeded": succeeded,
			"failed":    failed,
		},
		"circuit_breakers": breakers,
	})
}
