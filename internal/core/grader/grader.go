// Package grader turns page captures into per-category AI scores.
package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/ailink"
	"github.com/storelens/storelens/internal/core"
	"github.com/storelens/storelens/internal/core/collector"
)

const (
	DefaultPromptSlug  = "storefront-audit"
	DefaultRole        = "grader"
	DefaultTier        = "vision"
	DefaultMaxWidth    = 1024
	DefaultJPEGQuality = 80
	DefaultMaxImages   = 4
)

// Input is everything a grader may look at.
type Input struct {
	URL        string
	HTML       string
	Platform   core.Platform
	Screenshot []byte
	FlowShots  []core.ActionShot
}

// Logger is satisfied by *zap.Logger and the gofulmen logger.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Service is the AILink surface the vision grader needs.
type Service interface {
	Grade(ctx context.Context, req ailink.GradeRequest) (*ailink.GradeResponse, error)
}

// VisionGrader grades with a vision model through AILink.
type VisionGrader struct {
	Service     Service
	Role        string
	PromptSlug  string
	Tier        string
	Model       string
	Timeout     time.Duration
	MaxWidth    int
	JPEGQuality int
	MaxImages   int
	Logger      Logger
}

type gradePayload struct {
	Categories []gradedCategory `json:"categories"`
}

type gradedCategory struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Evidence proofDTO `json:"evidence"`
	Insights []string `json:"insights"`
}

type proofDTO struct {
	BoundingBox *core.BoundingBox `json:"bbox"`
	Snippet     string            `json:"snippet"`
	Locator     string            `json:"locator"`
}

// Grade returns exactly one AI result per category.
func (g *VisionGrader) Grade(ctx context.Context, in Input) ([]core.CategoryResult, error) {
	if g == nil || g.Service == nil {
		return nil, fmt.Errorf("vision grader not configured")
	}

	images, err := g.images(in)
	if err != nil {
		return nil, err
	}

	vars := map[string]string{"url": in.URL}
	if in.Platform != "" && in.Platform != core.PlatformUnknown {
		vars["platform"] = string(in.Platform)
	}
	if strings.TrimSpace(in.HTML) != "" {
		vars["html"] = in.HTML
	}

	resp, err := g.Service.Grade(ctx, ailink.GradeRequest{
		Role:       firstNonEmpty(g.Role, DefaultRole),
		PromptSlug: firstNonEmpty(g.PromptSlug, DefaultPromptSlug),
		Variables:  vars,
		Images:     images,
		Tier:       firstNonEmpty(g.Tier, DefaultTier),
		Model:      g.Model,
		Timeout:    g.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if g.Logger != nil {
		g.Logger.Debug("grade response received",
			zap.String("provider", resp.Provider),
			zap.String("model", resp.Model),
			zap.Int("bytes", len(resp.Raw)))
	}

	return Decode(resp.Raw)
}

func (g *VisionGrader) images(in Input) ([]ailink.Image, error) {
	maxImages := g.MaxImages
	if maxImages <= 0 {
		maxImages = DefaultMaxImages
	}
	width := g.MaxWidth
	if width <= 0 {
		width = DefaultMaxWidth
	}
	quality := g.JPEGQuality
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}

	raw := make([][]byte, 0, 1+len(in.FlowShots))
	if len(in.Screenshot) > 0 {
		raw = append(raw, in.Screenshot)
	}
	for _, shot := range in.FlowShots {
		if shot.Success && len(shot.Screenshot) > 0 {
			raw = append(raw, shot.Screenshot)
		}
	}
	if len(raw) > maxImages {
		raw = raw[:maxImages]
	}

	images := make([]ailink.Image, 0, len(raw))
	for i, data := range raw {
		scaled, mime, err := collector.Downscale(data, width, quality)
		if err != nil {
			// A broken flow shot should not cost the first view.
			if i == 0 {
				return nil, fmt.Errorf("prepare screenshot: %w", err)
			}
			if g.Logger != nil {
				g.Logger.Warn("skipping undecodable flow screenshot", zap.Int("index", i), zap.Error(err))
			}
			continue
		}
		images = append(images, ailink.Image{MIME: mime, Data: scaled})
	}
	return images, nil
}

// Decode parses a grader payload and requires each category exactly once.
func Decode(raw []byte) ([]core.CategoryResult, error) {
	var payload gradePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode grade payload: %w", err)
	}

	byCategory := make(map[core.Category]gradedCategory, len(payload.Categories))
	for _, item := range payload.Categories {
		c, ok := core.ParseCategory(item.ID)
		if !ok {
			return nil, fmt.Errorf("grade payload has unknown category %q", item.ID)
		}
		if _, dup := byCategory[c]; dup {
			return nil, fmt.Errorf("grade payload repeats category %q", c)
		}
		byCategory[c] = item
	}

	results := make([]core.CategoryResult, 0, len(byCategory))
	for _, c := range core.Categories() {
		item, ok := byCategory[c]
		if !ok {
			return nil, fmt.Errorf("grade payload is missing category %q", c)
		}
		ev, err := core.NewProofEvidence(c, core.Proof{
			BoundingBox: item.Evidence.BoundingBox,
			Snippet:     strings.TrimSpace(item.Evidence.Snippet),
			Locator:     strings.TrimSpace(item.Evidence.Locator),
		})
		if err != nil {
			return nil, err
		}
		results = append(results, core.CategoryResult{
			Category: c,
			Score:    core.ClampScore(item.Score),
			Source:   core.SourceAI,
			Evidence: ev,
			Insights: cleanInsights(item.Insights),
		})
	}
	return results, nil
}

func cleanInsights(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
