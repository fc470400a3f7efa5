package feed

import (
	"fmt"
	"time"

	"github.com/pagecomb/pagecomb/app/database"
	"github.com/pagecomb/pagecomb/app/extract"
)

// Counts aggregates one run's per-item classifications.
type Counts struct {
	Fetched int
	New     int
	Updated int
	Skipped int
}

// Deduplicator reconciles extracted candidates against stored items and
// records one audit row per candidate per run.
type Deduplicator struct {
	itemRepo database.ItemRepository
}

func NewDeduplicator(itemRepo database.ItemRepository) *Deduplicator {
	return &Deduplicator{itemRepo: itemRepo}
}

// Run classifies each candidate as new, refreshed or unchanged. The
// fingerprint and discovery timestamp of an existing item never change;
// refreshed items have their mutable fields overwritten.
func (d *Deduplicator) Run(feedID, runID string, candidates []extract.Candidate, now time.Time) (Counts, error) {
	counts := Counts{Fetched: len(candidates)}

	for _, candidate := range candidates {
		fingerprint := extract.Fingerprint(candidate)

		existing, err := d.itemRepo.GetItemByFingerprint(feedID, fingerprint)
		if err != nil {
			return counts, fmt.Errorf("failed to look up item: %w", err)
		}

		var itemID, changeKind string
		switch {
		case existing == nil:
			itemID, err = d.itemRepo.InsertItem(feedID, fingerprint, candidate.Title,
				candidate.Link, candidate.PublishedAt, candidate.Summary, now)
			if err != nil {
				return counts, fmt.Errorf("failed to insert item: %w", err)
			}
			changeKind = database.ChangeKindNew
			counts.New++

		case unchanged(existing, candidate):
			if err := d.itemRepo.TouchItem(existing.ID, now); err != nil {
				return counts, fmt.Errorf("failed to touch item: %w", err)
			}
			itemID = existing.ID
			changeKind = database.ChangeKindUnchanged
			counts.Skipped++

		default:
			if err := d.itemRepo.RefreshItem(existing.ID, candidate.Title, candidate.Link,
				candidate.PublishedAt, candidate.Summary, now); err != nil {
				return counts, fmt.Errorf("failed to refresh item: %w", err)
			}
			itemID = existing.ID
			changeKind = database.ChangeKindRefreshed
			counts.Updated++
		}

		if err := d.itemRepo.AddRunItem(runID, itemID, changeKind, now); err != nil {
			return counts, fmt.Errorf("failed to record run item: %w", err)
		}
	}

	return counts, nil
}

func unchanged(existing *database.Item, candidate extract.Candidate) bool {
	return existing.Title == candidate.Title &&
		existing.Summary == candidate.Summary &&
		samePublished(existing.PublishedAt, candidate.PublishedAt)
}

func samePublished(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
