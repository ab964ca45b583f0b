package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/storelens/storelens/internal/core"
)

const pagespeedService = "pagespeed"

const defaultPageSpeedURL = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

// PageSpeedClient runs Lighthouse lab audits through the PageSpeed Insights API.
type PageSpeedClient struct {
	BaseURL  string
	APIKey   string
	Strategy string
	Client   *http.Client
	Timeout  time.Duration
}

type lighthouseAudit struct {
	NumericValue *float64 `json:"numericValue"`
	Details      struct {
		Items []json.RawMessage `json:"items"`
	} `json:"details"`
}

type pagespeedResponse struct {
	LighthouseResult struct {
		Audits map[string]lighthouseAudit `json:"audits"`
	} `json:"lighthouseResult"`
}

// Audit measures target. deviceProfile overrides the configured strategy
// when non-empty ("mobile" or "desktop").
func (c *PageSpeedClient) Audit(ctx context.Context, target, deviceProfile string) (core.PerformanceMetrics, error) {
	if c == nil {
		return core.PerformanceMetrics{}, errors.New("performance auditor is not configured")
	}
	strategy := strings.ToLower(strings.TrimSpace(deviceProfile))
	if strategy == "" {
		strategy = strings.ToLower(strings.TrimSpace(c.Strategy))
	}
	if strategy == "" {
		strategy = "mobile"
	}

	base := c.BaseURL
	if strings.TrimSpace(base) == "" {
		base = defaultPageSpeedURL
	}
	endpoint, err := url.Parse(base)
	if err != nil {
		return core.PerformanceMetrics{}, fmt.Errorf("invalid pagespeed url: %w", err)
	}
	q := endpoint.Query()
	q.Set("url", target)
	q.Set("strategy", strategy)
	q.Set("category", "performance")
	if c.APIKey != "" {
		q.Set("key", c.APIKey)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return core.PerformanceMetrics{}, err
	}
	req.Header.Set("Accept", "application/json")

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	resp, err := clientOrDefault(c.Client, timeout).Do(req)
	if err != nil {
		return core.PerformanceMetrics{}, fmt.Errorf("pagespeed request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return core.PerformanceMetrics{}, serviceError(pagespeedService, resp)
	}

	var payload pagespeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return core.PerformanceMetrics{}, fmt.Errorf("decode pagespeed response: %w", err)
	}
	return payload.metrics()
}

// Audits every score breakpoint depends on. A report missing any of them is
// treated as unmeasured.
var requiredAudits = []string{"largest-contentful-paint", "cumulative-layout-shift", "total-blocking-time"}

func (p pagespeedResponse) metrics() (core.PerformanceMetrics, error) {
	audits := p.LighthouseResult.Audits
	values := make(map[string]float64, len(requiredAudits))
	for _, key := range requiredAudits {
		v, ok := numeric(audits, key)
		if !ok {
			return core.PerformanceMetrics{}, fmt.Errorf("pagespeed response has no %s", key)
		}
		values[key] = v
	}

	return core.PerformanceMetrics{
		Measured:      true,
		LCPSeconds:    values["largest-contentful-paint"] / 1000,
		CLS:           values["cumulative-layout-shift"],
		TBTMillis:     values["total-blocking-time"],
		ConsoleErrors: len(audits["errors-in-console"].Details.Items),
	}, nil
}

func numeric(audits map[string]lighthouseAudit, key string) (float64, bool) {
	a, ok := audits[key]
	if !ok || a.NumericValue == nil {
		return 0, false
	}
	return *a.NumericValue, true
}
