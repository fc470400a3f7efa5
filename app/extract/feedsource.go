package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// FeedSource normalizes sources that already serve RSS/Atom into the same
// candidate shape as selector extraction, so they flow through the usual
// dedup and audit path.
type FeedSource struct {
	parser *gofeed.Parser
}

func NewFeedSource() *FeedSource {
	return &FeedSource{
		parser: gofeed.NewParser(),
	}
}

func (f *FeedSource) Run(data []byte) ([]Candidate, error) {
	feed, err := f.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	candidates := make([]Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		candidate := Candidate{
			Title:   strings.TrimSpace(item.Title),
			Link:    strings.TrimSpace(item.Link),
			Summary: strings.TrimSpace(item.Description),
		}

		if item.PublishedParsed != nil {
			utc := item.PublishedParsed.UTC()
			candidate.PublishedAt = &utc
		} else if item.UpdatedParsed != nil {
			utc := item.UpdatedParsed.UTC()
			candidate.PublishedAt = &utc
		}

		if candidate.Title == "" && candidate.Link == "" {
			continue
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

// LooksLikeFeed sniffs whether a response body is RSS/Atom, used by the
// auto source mode to pick between feed parsing and selector extraction.
func LooksLikeFeed(contentType string, data []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "rss") || strings.Contains(ct, "atom") {
		return true
	}

	head := bytes.TrimSpace(data)
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.HasPrefix(head, []byte("<?xml")) {
		return bytes.Contains(head, []byte("<rss")) || bytes.Contains(head, []byte("<feed")) ||
			bytes.Contains(head, []byte("<rdf"))
	}
	return bytes.HasPrefix(head, []byte("<rss")) || bytes.HasPrefix(head, []byte("<feed"))
}
