package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/pagecomb/pagecomb/app/database"
)

// ErrSelectorMismatch indicates the page no longer matches the approved
// selector set: the list container is missing or a selector failed to
// compile. A matched container with zero items is not a mismatch.
var ErrSelectorMismatch = errors.New("selector-mismatch")

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Run applies the selector set to fetched markup and returns candidates in
// document order. Unparsable dates become nil, never an error.
func (e *Extractor) Run(data []byte, pageURL string, selectors database.SelectorSet) ([]Candidate, error) {
	if err := validateSelectors(selectors); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}

	container := doc.Find(selectors.ListContainer).First()
	if container.Length() == 0 {
		return nil, fmt.Errorf("%w: list container %q not found", ErrSelectorMismatch, selectors.ListContainer)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	var candidates []Candidate
	container.Find(selectors.Item).Each(func(_ int, item *goquery.Selection) {
		candidate := Candidate{
			Title: strings.TrimSpace(item.Find(selectors.Title).First().Text()),
			Link:  extractLink(item, selectors.Link, base),
		}

		if selectors.Published != "" {
			candidate.PublishedAt = extractPublished(item, selectors.Published)
		}
		if selectors.Summary != "" {
			candidate.Summary = strings.TrimSpace(item.Find(selectors.Summary).First().Text())
		}

		if candidate.Title == "" && candidate.Link == "" {
			return
		}
		candidates = append(candidates, candidate)
	})

	return candidates, nil
}

// validateSelectors compiles every selector before any query runs, so a
// broken selector set surfaces as a classified mismatch instead of silently
// matching nothing.
func validateSelectors(selectors database.SelectorSet) error {
	required := []struct{ name, selector string }{
		{"list container", selectors.ListContainer},
		{"item", selectors.Item},
		{"title", selectors.Title},
		{"link", selectors.Link},
	}
	for _, s := range required {
		if s.selector == "" {
			return fmt.Errorf("%w: %s selector is empty", ErrSelectorMismatch, s.name)
		}
		if err := compileSelector(s.name, s.selector); err != nil {
			return err
		}
	}

	optional := []struct{ name, selector string }{
		{"published", selectors.Published},
		{"summary", selectors.Summary},
	}
	for _, s := range optional {
		if s.selector == "" {
			continue
		}
		if err := compileSelector(s.name, s.selector); err != nil {
			return err
		}
	}

	return nil
}

func compileSelector(name, selector string) error {
	if _, err := cascadia.ParseGroup(selector); err != nil {
		return fmt.Errorf("%w: invalid %s selector %q: %v", ErrSelectorMismatch, name, selector, err)
	}
	return nil
}

// extractLink resolves the item's href against the page URL. The link
// selector may match the item node itself when the item is an anchor.
func extractLink(item *goquery.Selection, linkSelector string, base *url.URL) string {
	node := item.Find(linkSelector).First()
	if node.Length() == 0 && item.Is(linkSelector) {
		node = item
	}

	href, ok := node.Attr("href")
	if !ok {
		return ""
	}
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func extractPublished(item *goquery.Selection, publishedSelector string) *time.Time {
	node := item.Find(publishedSelector).First()
	if node.Length() == 0 {
		return nil
	}

	// <time datetime="..."> carries the machine-readable value
	if dt, ok := node.Attr("datetime"); ok {
		if parsed := ParseDate(dt); parsed != nil {
			return parsed
		}
	}

	return ParseDate(node.Text())
}
