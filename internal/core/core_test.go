package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestCategoriesOrder(t *testing.T) {
	cats := Categories()
	require.Len(t, cats, 10)
	require.Equal(t, CategoryPerformance, cats[0])
	require.Equal(t, CategorySEOAnalytics, cats[9])

	c, ok := ParseCategory(" Trust_Signals ")
	require.True(t, ok)
	require.Equal(t, CategoryTrustSignals, c)

	_, ok = ParseCategory("checkout")
	require.False(t, ok)
}

func TestClampScore(t *testing.T) {
	require.Equal(t, 0.0, ClampScore(-3))
	require.Equal(t, 10.0, ClampScore(11.5))
	require.Equal(t, 7.25, ClampScore(7.25))
}

func TestRunStatusTransitions(t *testing.T) {
	require.True(t, StatusPending.CanTransitionTo(StatusProcessing))
	require.True(t, StatusProcessing.CanTransitionTo(StatusCompleted))
	require.True(t, StatusProcessing.CanTransitionTo(StatusFailed))
	require.False(t, StatusPending.CanTransitionTo(StatusCompleted))
	require.False(t, StatusCompleted.CanTransitionTo(StatusFailed))
	require.False(t, StatusFailed.CanTransitionTo(StatusProcessing))
	require.True(t, StatusFailed.Terminal())
}

func TestNewAuditRun(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	run, err := NewAuditRun("Shop.Example.co.uk/collections#top", now)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	require.Equal(t, "https://shop.example.co.uk/collections", run.TargetURL)
	require.Equal(t, "example.co.uk", run.Domain)
	require.Equal(t, StatusPending, run.Status)
	require.Equal(t, now, run.CreatedAt)

	_, err = NewAuditRun("  ", now)
	require.True(t, IsKind(err, KindValidation))

	_, err = NewAuditRun("ftp://example.com", now)
	require.True(t, IsKind(err, KindValidation))
}

func TestPublicMessage(t *testing.T) {
	err := fmt.Errorf("run: %w", NewFatalError("collection", "no usable capture", errors.New("dial tcp: refused")))
	require.Equal(t, "collection: no usable capture", PublicMessage(err))
	require.True(t, IsKind(err, KindFatal))
	require.False(t, IsKind(err, KindDegraded))

	long := PublicMessage(errors.New(strings.Repeat("x", 500)))
	require.Len(t, long, maxPublicMessage)

	// Three-byte runes must not be split at the cut.
	japanese := PublicMessage(errors.New(strings.Repeat("店", 200)))
	require.True(t, utf8.ValidString(japanese))
	require.True(t, strings.HasSuffix(japanese, "..."))
	require.LessOrEqual(t, len(japanese), maxPublicMessage)
	require.True(t, strings.HasSuffix(long, "..."))
	require.Equal(t, "", PublicMessage(nil))
}

func TestCategoryResultDecodesTypedEvidence(t *testing.T) {
	payload := `{"id":"trust_signals","score":6,"evidence":{"bbox":{"x":1,"y":2,"width":30,"height":40},"snippet":"Free returns"}}`
	var result CategoryResult
	require.NoError(t, json.Unmarshal([]byte(payload), &result))

	ev, ok := result.Evidence.(*TrustEvidence)
	require.True(t, ok)
	require.Equal(t, "Free returns", ev.Snippet)
	require.True(t, HasProof(result.Evidence))

	var empty CategoryResult
	require.NoError(t, json.Unmarshal([]byte(`{"id":"visuals","score":3,"evidence":null}`), &empty))
	require.Nil(t, empty.Evidence)
	require.False(t, HasProof(empty.Evidence))
}

func TestMarkupOfRequiresMeasured(t *testing.T) {
	ev := &MobileEvidence{Markup: &MarkupSignals{HasViewportMeta: true}}
	_, ok := MarkupOf(ev)
	require.False(t, ok)

	ev.Markup.Measured = true
	m, ok := MarkupOf(ev)
	require.True(t, ok)
	require.True(t, m.HasViewportMeta)

	_, ok = MarkupOf(&PerformanceEvidence{})
	require.False(t, ok)
}

func TestProofPresent(t *testing.T) {
	require.False(t, Proof{}.Present())
	require.False(t, Proof{BoundingBox: &BoundingBox{Width: 0, Height: 10}}.Present())
	require.True(t, Proof{Locator: "header nav"}.Present())
}
