package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/pagecomb/pagecomb/app/cfg"
)

// ErrCircuitOpen is returned when the host's breaker is open and the fetch
// was skipped without any network call.
var ErrCircuitOpen = errors.New("circuit-open")

const maxBodySize = 10 << 20 // 10 MiB

// Error is a classified fetch failure with a sanitized reason suitable for
// persisting on the parse run.
type Error struct {
	Reason    string
	Status    int
	Transient bool
	Retries   int
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Request describes one conditional GET, validators taken from the feed's
// stored state.
type Request struct {
	URL          string
	Etag         string
	LastModified string
}

// Result is a successful fetch outcome. NotModified carries a 304 with no
// body; otherwise Body holds the UTF-8 decoded response.
type Result struct {
	StatusCode   int
	NotModified  bool
	Body         []byte
	ContentType  string
	Etag         string
	LastModified string
	Retries      int
}

// Fetcher performs conditional GETs behind the policy pipeline: per-attempt
// timeout, retry with exponential backoff for transient failures, and the
// per-host circuit breaker gating the whole run.
type Fetcher struct {
	client      *http.Client
	breaker     *BreakerRegistry
	userAgent   string
	timeout     time.Duration
	maxAttempts int
	backoffBase time.Duration
}

func NewFetcher(breaker *BreakerRegistry) *Fetcher {
	c := cfg.Get()

	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
		},
		breaker:     breaker,
		userAgent:   c.UserAgent,
		timeout:     time.Duration(c.FetchTimeout) * time.Second,
		maxAttempts: c.FetchRetries,
		backoffBase: 500 * time.Millisecond,
	}
}

// Run executes the fetch for one parse run. An open breaker fails fast with
// ErrCircuitOpen and performs zero network calls; the breaker's failure
// count moves on the run's final outcome, not per attempt.
func (f *Fetcher) Run(ctx context.Context, req Request) (*Result, error) {
	host, err := hostOf(req.URL)
	if err != nil {
		return nil, &Error{Reason: "invalid-url", Err: err}
	}

	if !f.breaker.Allow(host) {
		return nil, ErrCircuitOpen
	}

	var lastErr *Error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := f.wait(ctx, attempt); err != nil {
				break
			}
		}

		result, fetchErr := f.attempt(ctx, req)
		if fetchErr == nil {
			result.Retries = attempt
			f.breaker.OnSuccess(host)
			return result, nil
		}

		fetchErr.Retries = attempt
		lastErr = fetchErr
		if !fetchErr.Transient {
			break
		}
	}

	if lastErr == nil {
		lastErr = &Error{Reason: "canceled", Err: ctx.Err()}
	}
	// A canceled context says nothing about the host's health, so it must
	// not push the breaker toward opening.
	if ctx.Err() == nil {
		f.breaker.OnFailure(host)
	}
	return nil, lastErr
}

func (f *Fetcher) attempt(ctx context.Context, req Request) (*Result, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &Error{Reason: "invalid-url", Err: err}
	}

	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", "text/html, application/xhtml+xml, application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if req.Etag != "" {
		httpReq.Header.Set("If-None-Match", req.Etag)
	}
	if req.LastModified != "" {
		httpReq.Header.Set("If-Modified-Since", req.LastModified)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Reason: "canceled", Err: ctx.Err()}
		}
		if attemptCtx.Err() == context.DeadlineExceeded {
			return nil, &Error{Reason: "timeout", Transient: true, Err: err}
		}
		return nil, &Error{Reason: "network-error", Transient: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &Result{
			StatusCode:  resp.StatusCode,
			NotModified: true,
		}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := decodeBody(resp)
		if err != nil {
			return nil, &Error{Reason: "read-error", Status: resp.StatusCode, Transient: true, Err: err}
		}
		return &Result{
			StatusCode:   resp.StatusCode,
			Body:         body,
			ContentType:  resp.Header.Get("Content-Type"),
			Etag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}, nil

	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{
			Reason:    fmt.Sprintf("http-%d", resp.StatusCode),
			Status:    resp.StatusCode,
			Transient: true,
		}
	}

	return nil, &Error{
		Reason: fmt.Sprintf("http-%d", resp.StatusCode),
		Status: resp.StatusCode,
	}
}

func (f *Fetcher) wait(ctx context.Context, attempt int) error {
	delay := f.backoffBase * time.Duration(1<<uint(attempt-1))
	if delay > 10*time.Second {
		delay = 10 * time.Second
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// decodeBody reads the response converted to UTF-8 based on the declared
// charset, so extraction always sees UTF-8 markup.
func decodeBody(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, maxBodySize)

	reader, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = limited
	}

	return io.ReadAll(reader)
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("no host in URL %q", rawURL)
	}
	return host, nil
}
