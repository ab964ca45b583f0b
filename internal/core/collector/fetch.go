package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storelens/storelens/internal/core"
)

const fetchSource = "fetch"

// DefaultMobileUserAgent is sent by the plain fetch fallback.
const DefaultMobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

const defaultMaxBytes = 5 << 20

// Fetcher retrieves raw HTML with a plain GET. It never produces a screenshot.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
	Timeout   time.Duration
}

// Collect fetches target. The platform hint is unused.
func (f *Fetcher) Collect(ctx context.Context, target string, _ core.Platform) (*core.Capture, error) {
	if f == nil {
		return nil, errors.New("fetcher is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	ua := f.UserAgent
	if strings.TrimSpace(ua) == "" {
		ua = DefaultMobileUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	resp, err := clientOrDefault(f.Client, timeout).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, serviceError(fetchSource, resp)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	html := string(body)
	capture := &core.Capture{
		Source:   fetchSource,
		FinalURL: finalURL,
		HTML:     html,
		Links:    ExtractLinks(html, finalURL),
		Headers:  map[string][]string(resp.Header.Clone()),
	}
	for _, c := range resp.Cookies() {
		capture.Cookies = append(capture.Cookies, c.Name)
	}
	return capture, nil
}
