package extract

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ParseDate parses a published date permissively across the formats seen in
// the wild. Unparsable input yields nil rather than an error.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parsed, err := dateparse.ParseAny(raw)
	if err != nil {
		return nil
	}

	utc := parsed.UTC()
	return &utc
}
