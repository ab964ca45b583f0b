// Package scoring turns grader output and measured evidence into category
// scores, a total and capped improvement lists.
package scoring

import (
	"math"
	"strings"

	"github.com/storelens/storelens/internal/core"
)

// MaxImprovements caps the suggestions kept per category.
const MaxImprovements = 3

// Result is the scored audit.
type Result struct {
	TotalScore   int                                `json:"total_score"`
	Categories   []core.CategoryResult              `json:"categories"`
	Sources      map[core.Category]core.ScoreSource `json:"sources"`
	Improvements map[core.Category][]string         `json:"improvements"`
}

// Engine applies the strategy table. It is safe for concurrent use.
type Engine struct {
	cfg      RuleConfig
	messages Messages
	table    []Descriptor
}

// NewEngine binds rule configuration and improvement messages.
func NewEngine(cfg RuleConfig, messages Messages) *Engine {
	cfg = cfg.normalized()
	return &Engine{
		cfg:      cfg,
		messages: messages.merged(),
		table:    Strategies(cfg),
	}
}

// Score never fails. Categories absent from aiOutput score 0 with no evidence;
// duplicates after the first are ignored.
func (e *Engine) Score(aiOutput []core.CategoryResult) Result {
	byCategory := make(map[core.Category]core.CategoryResult, len(aiOutput))
	for _, r := range aiOutput {
		if _, dup := byCategory[r.Category]; dup {
			continue
		}
		byCategory[r.Category] = r
	}

	result := Result{
		Categories:   make([]core.CategoryResult, 0, len(e.table)),
		Sources:      make(map[core.Category]core.ScoreSource, len(e.table)),
		Improvements: make(map[core.Category][]string, len(e.table)),
	}

	var total float64
	for _, d := range e.table {
		in, ok := byCategory[d.Category]
		if !ok {
			in = core.CategoryResult{Category: d.Category}
		}
		out := e.scoreOne(d, in)
		total += out.Score
		result.Categories = append(result.Categories, out)
		result.Sources[d.Category] = out.Source
		result.Improvements[d.Category] = out.Insights
	}
	result.TotalScore = int(math.Round(total))
	return result
}

func (e *Engine) scoreOne(d Descriptor, in core.CategoryResult) core.CategoryResult {
	out := core.CategoryResult{
		Category: d.Category,
		Source:   d.Source,
		Evidence: in.Evidence,
		Metrics:  copyMetrics(in.Metrics),
	}

	if d.Gate != nil && !d.Gate(in.Evidence) {
		out.Score = 0
		var rule RuleOutcome
		if d.Rule != nil {
			rule = d.Rule(e.cfg, in.Evidence)
		}
		out.Insights = e.improvements(d.Category, nil, rule.Breaches, true)
		return out
	}

	var rule RuleOutcome
	if d.Rule != nil {
		rule = d.Rule(e.cfg, in.Evidence)
		setMetric(&out, "rule_points", rule.Points)
	}
	aiScore := core.ClampScore(in.Score)

	switch d.Source {
	case core.SourceRule:
		out.Score = core.ClampScore(rule.Points)
	case core.SourceAI:
		out.Score = aiScore
	case core.SourceHybrid:
		setMetric(&out, "ai_score", aiScore)
		out.Score = math.Round(core.ClampScore(rule.Points + d.AIWeight*aiScore))
	}
	out.Insights = e.improvements(d.Category, in.Insights, rule.Breaches, false)
	return out
}

func (e *Engine) improvements(c core.Category, ai, breaches []string, gated bool) []string {
	candidates := make([]string, 0, len(ai)+len(breaches)+1)
	if gated {
		candidates = append(candidates, EvidenceShortageInsight)
	} else {
		candidates = append(candidates, ai...)
	}
	for _, b := range breaches {
		candidates = append(candidates, e.messages.Lookup(c, b))
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, MaxImprovements)
	for _, s := range candidates {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == MaxImprovements {
			break
		}
	}
	return out
}

// Validate checks the produced result against its range and source contract.
func (r Result) Validate() error {
	if len(r.Categories) != len(core.Categories()) {
		return core.NewInvariantError("scoring", "expected %d categories, got %d", len(core.Categories()), len(r.Categories))
	}
	for _, c := range r.Categories {
		if c.Score < core.MinScore || c.Score > core.MaxScore || math.IsNaN(c.Score) {
			return core.NewInvariantError("scoring", "%s score %v out of range", c.Category, c.Score)
		}
		if !c.Source.Valid() {
			return core.NewInvariantError("scoring", "%s has unknown source %q", c.Category, c.Source)
		}
		if len(c.Insights) > MaxImprovements {
			return core.NewInvariantError("scoring", "%s has %d improvements", c.Category, len(c.Insights))
		}
	}
	limit := int(core.MaxScore) * len(core.Categories())
	if r.TotalScore < 0 || r.TotalScore > limit {
		return core.NewInvariantError("scoring", "total score %d out of range", r.TotalScore)
	}
	return nil
}

func copyMetrics(in map[string]float64) map[string]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func setMetric(r *core.CategoryResult, key string, value float64) {
	if r.Metrics == nil {
		r.Metrics = make(map[string]float64)
	}
	r.Metrics[key] = value
}
