package extract

import (
	"time"
)

// Candidate is one extracted article candidate, in document order.
type Candidate struct {
	Title       string
	Link        string
	PublishedAt *time.Time
	Summary     string
}
