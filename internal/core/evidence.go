package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Evidence is the category-specific support for a score. Each category has
// exactly one concrete record type; see NewEvidence.
type Evidence interface {
	Category() Category
	evidence()
}

// BoundingBox locates a region of a screenshot in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Proof is the visual or markup citation an AI claim must carry.
type Proof struct {
	BoundingBox *BoundingBox `json:"bbox,omitempty"`
	Snippet     string       `json:"snippet,omitempty"`
	Locator     string       `json:"locator,omitempty"`
}

// Present reports whether the proof cites anything.
func (p Proof) Present() bool {
	if p.BoundingBox != nil && p.BoundingBox.Width > 0 && p.BoundingBox.Height > 0 {
		return true
	}
	return strings.TrimSpace(p.Snippet) != "" || strings.TrimSpace(p.Locator) != ""
}

// ProofRecord exposes the embedded proof.
func (p Proof) ProofRecord() Proof { return p }

type proofCarrier interface {
	ProofRecord() Proof
}

type markupCarrier interface {
	MarkupRecord() *MarkupSignals
}

type PerformanceEvidence struct {
	Metrics PerformanceMetrics `json:"metrics"`
}

func (*PerformanceEvidence) Category() Category { return CategoryPerformance }
func (*PerformanceEvidence) evidence() {}

type FirstViewEvidence struct {
	Proof
	Markup *MarkupSignals `json:"markup,omitempty"`
}

func (*FirstViewEvidence) Category() Category { return CategoryFirstView }
func (*FirstViewEvidence) evidence() {}
func (e *FirstViewEvidence) MarkupRecord() *MarkupSignals { return e.Markup }

type BrandIdentityEvidence struct {
	Proof
}

func (*BrandIdentityEvidence) Category() Category { return CategoryBrandIdentity }
func (*BrandIdentityEvidence) evidence() {}

type NavigationEvidence struct {
	Proof
}

func (*NavigationEvidence) Category() Category { return CategoryNavigation }
func (*NavigationEvidence) evidence() {}

type PromotionsEvidence struct {
	Proof
}

func (*PromotionsEvidence) Category() Category { return CategoryPromotions }
func (*PromotionsEvidence) evidence() {}

type VisualsEvidence struct {
	Proof
}

func (*VisualsEvidence) Category() Category { return CategoryVisuals }
func (*VisualsEvidence) evidence() {}

type TrustEvidence struct {
	Proof
}

func (*TrustEvidence) Category() Category { return CategoryTrustSignals }
func (*TrustEvidence) evidence() {}

// MobileEvidence is gated on measured markup rather than on proof.
type MobileEvidence struct {
	Proof
	Markup *MarkupSignals `json:"markup,omitempty"`
}

func (*MobileEvidence) Category() Category { return CategoryMobileUsability }
func (*MobileEvidence) evidence() {}
func (e *MobileEvidence) MarkupRecord() *MarkupSignals { return e.Markup }

type PurchaseFlowEvidence struct {
	Proof
	Steps []FlowStep `json:"steps,omitempty"`
}

func (*PurchaseFlowEvidence) Category() Category { return CategoryPurchaseFlow }
func (*PurchaseFlowEvidence) evidence() {}

type SEOAnalyticsEvidence struct {
	Proof
	Markup *MarkupSignals `json:"markup,omitempty"`
}

func (*SEOAnalyticsEvidence) Category() Category { return CategorySEOAnalytics }
func (*SEOAnalyticsEvidence) evidence() {}
func (e *SEOAnalyticsEvidence) MarkupRecord() *MarkupSignals { return e.Markup }

// NewEvidence returns an empty record of the concrete type for c.
func NewEvidence(c Category) (Evidence, error) {
	switch c {
	case CategoryPerformance:
		return &PerformanceEvidence{}, nil
	case CategoryFirstView:
		return &FirstViewEvidence{}, nil
	case CategoryBrandIdentity:
		return &BrandIdentityEvidence{}, nil
	case CategoryNavigation:
		return &NavigationEvidence{}, nil
	case CategoryPromotions:
		return &PromotionsEvidence{}, nil
	case CategoryVisuals:
		return &VisualsEvidence{}, nil
	case CategoryTrustSignals:
		return &TrustEvidence{}, nil
	case CategoryMobileUsability:
		return &MobileEvidence{}, nil
	case CategoryPurchaseFlow:
		return &PurchaseFlowEvidence{}, nil
	case CategorySEOAnalytics:
		return &SEOAnalyticsEvidence{}, nil
	default:
		return nil, fmt.Errorf("unknown category %q", c)
	}
}

// NewProofEvidence builds the record for c carrying proof.
func NewProofEvidence(c Category, proof Proof) (Evidence, error) {
	ev, err := NewEvidence(c)
	if err != nil {
		return nil, err
	}
	switch e := ev.(type) {
	case *FirstViewEvidence:
		e.Proof = proof
	case *BrandIdentityEvidence:
		e.Proof = proof
	case *NavigationEvidence:
		e.Proof = proof
	case *PromotionsEvidence:
		e.Proof = proof
	case *VisualsEvidence:
		e.Proof = proof
	case *TrustEvidence:
		e.Proof = proof
	case *MobileEvidence:
		e.Proof = proof
	case *PurchaseFlowEvidence:
		e.Proof = proof
	case *SEOAnalyticsEvidence:
		e.Proof = proof
	}
	return ev, nil
}

// ProofOf returns the proof carried by e, if its type carries one.
func ProofOf(e Evidence) (Proof, bool) {
	if e == nil {
		return Proof{}, false
	}
	pc, ok := e.(proofCarrier)
	if !ok {
		return Proof{}, false
	}
	return pc.ProofRecord(), true
}

// HasProof reports whether e carries a present proof.
func HasProof(e Evidence) bool {
	p, ok := ProofOf(e)
	return ok && p.Present()
}

// MarkupOf returns measured markup attached to e.
func MarkupOf(e Evidence) (MarkupSignals, bool) {
	if e == nil {
		return MarkupSignals{}, false
	}
	mc, ok := e.(markupCarrier)
	if !ok {
		return MarkupSignals{}, false
	}
	m := mc.MarkupRecord()
	if m == nil || !m.Measured {
		return MarkupSignals{}, false
	}
	return *m, true
}

// UnmarshalJSON decodes evidence into the record type of the category.
func (r *CategoryResult) UnmarshalJSON(data []byte) error {
	type plain CategoryResult
	var aux struct {
		plain
		Evidence json.RawMessage `json:"evidence,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = CategoryResult(aux.plain)
	r.Evidence = nil

	raw := strings.TrimSpace(string(aux.Evidence))
	if raw == "" || raw == "null" {
		return nil
	}
	ev, err := NewEvidence(r.Category)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(aux.Evidence, ev); err != nil {
		return fmt.Errorf("decode %s evidence: %w", r.Category, err)
	}
	r.Evidence = ev
	return nil
}
