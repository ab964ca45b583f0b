package collector

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/storelens/storelens/internal/core"
)

const (
	scrapeService     = "scrape"
	screenshotService = "screenshot"
)

// Viewport is the emulated device size sent to the scraping service.
type Viewport struct {
	Width  int  `json:"width" mapstructure:"width"`
	Height int  `json:"height" mapstructure:"height"`
	Mobile bool `json:"mobile" mapstructure:"mobile"`
}

// DefaultViewport emulates a common phone.
func DefaultViewport() Viewport {
	return Viewport{Width: 390, Height: 844, Mobile: true}
}

// Action is a scripted interaction whose result is captured as a screenshot.
type Action struct {
	Name     string `json:"name" mapstructure:"name"`
	Selector string `json:"selector" mapstructure:"selector"`
}

// DefaultActions traces the purchase flow for known platforms.
func DefaultActions(hint core.Platform) []Action {
	switch hint {
	case core.PlatformShopify:
		return []Action{
			{Name: "product", Selector: "a[href*='/products/']"},
			{Name: "add_to_cart", Selector: "form[action*='/cart/add'] [type=submit]"},
			{Name: "cart", Selector: "a[href='/cart']"},
		}
	case core.PlatformEcforce:
		return []Action{
			{Name: "product", Selector: "a[href*='/shop/products/']"},
			{Name: "add_to_cart", Selector: ".ecforce-cart-form [type=submit]"},
			{Name: "cart", Selector: "a[href*='/shop/cart']"},
		}
	default:
		return []Action{
			{Name: "product", Selector: "a[href*='product']"},
			{Name: "cart", Selector: "a[href*='cart']"},
		}
	}
}

type scrapeRequest struct {
	URL          string   `json:"url"`
	PlatformHint string   `json:"platform_hint,omitempty"`
	Actions      []Action `json:"actions,omitempty"`
	Viewport     Viewport `json:"viewport"`
}

type scrapeResponse struct {
	HTML              string              `json:"html"`
	Screenshot        string              `json:"screenshot"`
	FinalURL          string              `json:"final_url"`
	Links             []string            `json:"links"`
	Headers           map[string][]string `json:"headers"`
	Cookies           []string            `json:"cookies"`
	ActionScreenshots []struct {
		Name       string `json:"name"`
		URL        string `json:"url"`
		Success    bool   `json:"success"`
		Screenshot string `json:"screenshot"`
	} `json:"action_screenshots"`
}

type screenshotRequest struct {
	URL      string   `json:"url"`
	Viewport Viewport `json:"viewport"`
}

type screenshotResponse struct {
	Image string `json:"image"`
}

// ScrapeClient talks to the headless-browser scraping service.
type ScrapeClient struct {
	BaseURL  string
	APIKey   string
	Viewport Viewport
	Client   *http.Client
	Timeout  time.Duration
}

// Scrape renders target with platform-specific actions. A failed request is
// retried once internally without actions.
func (c *ScrapeClient) Scrape(ctx context.Context, target string, hint core.Platform) (*core.Capture, error) {
	if c == nil || strings.TrimSpace(c.BaseURL) == "" {
		return nil, errors.New("scrape service is not configured")
	}
	req := scrapeRequest{
		URL:          target,
		PlatformHint: string(hint),
		Actions:      DefaultActions(hint),
		Viewport:     c.viewport(),
	}

	var resp scrapeResponse
	err := postJSON(ctx, c.client(), scrapeService, joinURL(c.BaseURL, "/v1/scrape"), c.APIKey, req, &resp)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		req.Actions = nil
		resp = scrapeResponse{}
		if retryErr := postJSON(ctx, c.client(), scrapeService, joinURL(c.BaseURL, "/v1/scrape"), c.APIKey, req, &resp); retryErr != nil {
			return nil, errors.Join(err, retryErr)
		}
	}
	return resp.capture()
}

// CaptureScreenshot returns a full-page screenshot of target.
func (c *ScrapeClient) CaptureScreenshot(ctx context.Context, target string) ([]byte, error) {
	if c == nil || strings.TrimSpace(c.BaseURL) == "" {
		return nil, errors.New("screenshot service is not configured")
	}
	var resp screenshotResponse
	req := screenshotRequest{URL: target, Viewport: c.viewport()}
	if err := postJSON(ctx, c.client(), screenshotService, joinURL(c.BaseURL, "/v1/screenshot"), c.APIKey, req, &resp); err != nil {
		return nil, err
	}
	img, err := decodeImage(resp.Image)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	if len(img) == 0 {
		return nil, errors.New("screenshot service returned no image")
	}
	return img, nil
}

func (c *ScrapeClient) viewport() Viewport {
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return DefaultViewport()
	}
	return c.Viewport
}

func (c *ScrapeClient) client() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return clientOrDefault(c.Client, timeout)
}

func (r scrapeResponse) capture() (*core.Capture, error) {
	shot, err := decodeImage(r.Screenshot)
	if err != nil {
		return nil, fmt.Errorf("decode scrape screenshot: %w", err)
	}
	capture := &core.Capture{
		Source:     scrapeService,
		FinalURL:   r.FinalURL,
		HTML:       r.HTML,
		Screenshot: shot,
		Links:      r.Links,
		Headers:    r.Headers,
		Cookies:    r.Cookies,
	}
	for _, a := range r.ActionScreenshots {
		img, _ := decodeImage(a.Screenshot)
		capture.ActionShots = append(capture.ActionShots, core.ActionShot{
			Name:       a.Name,
			URL:        a.URL,
			Success:    a.Success,
			Screenshot: img,
		})
	}
	return capture, nil
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if strings.HasPrefix(value, "data:") {
		if _, payload, ok := strings.Cut(value, ","); ok {
			value = payload
		}
	}
	return base64.StdEncoding.DecodeString(value)
}

// ScrapeCollector is the primary collection attempt: scrape, then a dedicated
// screenshot capture when the scrape produced none.
type ScrapeCollector struct {
	Scraper *ScrapeClient
}

// Collect returns whatever was captured, even when partial. The error is
// non-nil when either call failed.
func (s *ScrapeCollector) Collect(ctx context.Context, target string, hint core.Platform) (*core.Capture, error) {
	capture, err := s.Scraper.Scrape(ctx, target, hint)
	if capture == nil {
		capture = &core.Capture{Source: scrapeService}
	}
	if len(capture.Screenshot) > 0 {
		return capture, err
	}
	shot, shotErr := s.Scraper.CaptureScreenshot(ctx, target)
	if shotErr == nil {
		capture.Screenshot = shot
	}
	return capture, errors.Join(err, shotErr)
}

// HasScreenshot is the sufficiency check for the scrape attempt.
func HasScreenshot(c *core.Capture) bool {
	return c != nil && len(c.Screenshot) > 0
}

// HasHTML is the sufficiency check for the fetch attempt.
func HasHTML(c *core.Capture) bool {
	return c != nil && strings.TrimSpace(c.HTML) != ""
}
