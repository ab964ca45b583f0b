package scoring

import "github.com/storelens/storelens/internal/core"

// Gate decides whether a category has enough evidence to be scored.
type Gate func(ev core.Evidence) bool

// Descriptor says how one category is scored.
type Descriptor struct {
	Category core.Category
	Source   core.ScoreSource
	Rule     RuleFunc
	AIWeight float64
	Gate     Gate
}

func requireProof(ev core.Evidence) bool {
	return core.HasProof(ev)
}

func requireMarkup(ev core.Evidence) bool {
	_, ok := core.MarkupOf(ev)
	return ok
}

// Strategies returns the descriptor table in category order. Hybrid
// descriptors carry the configured damping as AIWeight.
func Strategies(cfg RuleConfig) []Descriptor {
	damping := cfg.normalized().Damping
	table := make([]Descriptor, 0, len(core.Categories()))
	for _, c := range core.Categories() {
		table = append(table, descriptorFor(c, damping))
	}
	return table
}

func descriptorFor(c core.Category, damping float64) Descriptor {
	switch c {
	case core.CategoryPerformance:
		return Descriptor{Category: c, Source: core.SourceRule, Rule: performanceRule}
	case core.CategoryMobileUsability:
		return Descriptor{Category: c, Source: core.SourceRule, Rule: mobileRule, Gate: requireMarkup}
	case core.CategoryFirstView:
		return Descriptor{Category: c, Source: core.SourceHybrid, Rule: firstViewRule, AIWeight: damping, Gate: requireProof}
	case core.CategorySEOAnalytics:
		return Descriptor{Category: c, Source: core.SourceHybrid, Rule: seoRule, AIWeight: damping, Gate: requireProof}
	default:
		return Descriptor{Category: c, Source: core.SourceAI, AIWeight: 1, Gate: requireProof}
	}
}
