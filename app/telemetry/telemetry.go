// Package telemetry emits fire-and-forget stage events for the parsing
// pipeline. Delivery is best-effort and never affects run correctness.
package telemetry

import (
	"log/slog"
	"time"
)

type Sink interface {
	FetchStart(feed string)
	FetchEnd(feed string, status int, duration time.Duration)
	ExtractEnd(feed string, candidateCount int)
	RunComplete(feed, status string, fetched, newItems, updated, skipped, retries int, circuitOpen bool)
}

// SlogSink writes stage events to the structured log.
type SlogSink struct{}

var _ Sink = SlogSink{}

func (SlogSink) FetchStart(feed string) {
	slog.Debug("Fetch started", "feed", feed)
}

func (SlogSink) FetchEnd(feed string, status int, duration time.Duration) {
	slog.Debug("Fetch finished", "feed", feed, "status", status, "duration_ms", duration.Milliseconds())
}

func (SlogSink) ExtractEnd(feed string, candidateCount int) {
	slog.Debug("Extraction finished", "feed", feed, "candidates", candidateCount)
}

func (SlogSink) RunComplete(feed, status string, fetched, newItems, updated, skipped, retries int, circuitOpen bool) {
	slog.Info("Run completed", "feed", feed, "status", status, "fetched", fetched,
		"new", newItems, "updated", updated, "skipped", skipped, "retries", retries,
		"circuit_open", circuitOpen)
}

// NopSink discards all events.
type NopSink struct{}

var _ Sink = NopSink{}

func (NopSink) FetchStart(string)                                         {}
func (NopSink) FetchEnd(string, int, time.Duration)                       {}
func (NopSink) ExtractEnd(string, int)                                    {}
func (NopSink) RunComplete(string, string, int, int, int, int, int, bool) {}
