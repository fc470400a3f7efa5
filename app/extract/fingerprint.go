package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Fingerprint derives a stable identity key for a candidate. It hashes the
// normalized link when one is present, falling back to the normalized title.
// The result must stay stable across process restarts: changing the scheme
// silently re-creates every stored item as new.
func Fingerprint(candidate Candidate) string {
	canonical, ok := normalizeLink(candidate.Link)
	if !ok {
		canonical = "title:" + normalizeTitle(candidate.Title)
	}

	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// normalizeLink canonicalizes a URL: lowercased scheme and host, default
// ports dropped, query parameters sorted, fragment stripped.
func normalizeLink(link string) (string, bool) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", false
	}

	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if scheme == "http" {
		host = strings.TrimSuffix(host, ":80")
	} else if scheme == "https" {
		host = strings.TrimSuffix(host, ":443")
	}

	canonical := "link:" + scheme + "://" + host + u.EscapedPath()

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, 0, len(params))
		for _, k := range keys {
			values := params[k]
			sort.Strings(values)
			for _, v := range values {
				pairs = append(pairs, k+"="+v)
			}
		}
		canonical += "?" + strings.Join(pairs, "&")
	}

	return canonical, true
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
