package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/ailink"
	"github.com/storelens/storelens/internal/core"
)

type fakeService struct {
	raw  string
	err  error
	seen ailink.GradeRequest
}

func (f *fakeService) Grade(_ context.Context, req ailink.GradeRequest) (*ailink.GradeResponse, error) {
	f.seen = req
	if f.err != nil {
		return nil, f.err
	}
	return &ailink.GradeResponse{Raw: json.RawMessage(f.raw), Provider: "p", Model: "m"}, nil
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func fullPayload(score float64, skip core.Category) string {
	items := make([]string, 0, 10)
	for _, c := range core.Categories() {
		if c == skip {
			continue
		}
		items = append(items, fmt.Sprintf(`{"id":%q,"score":%v,"evidence":{"bbox":null,"snippet":"<h1>%s</h1>","locator":""},"insights":[" Fix %s ",""]}`, c, score, c, c))
	}
	return `{"categories":[` + strings.Join(items, ",") + `]}`
}

func TestVisionGraderDecodesAllCategories(t *testing.T) {
	svc := &fakeService{raw: fullPayload(12, "")}
	g := &VisionGrader{Service: svc, MaxWidth: 8, Logger: zap.NewNop()}

	results, err := g.Grade(context.Background(), Input{
		URL:        "https://shop.example",
		HTML:       "<html></html>",
		Platform:   core.PlatformShopify,
		Screenshot: pngOf(t, 16, 32),
		FlowShots: []core.ActionShot{
			{Name: "cart", Success: true, Screenshot: pngOf(t, 4, 4)},
			{Name: "checkout", Success: false, Screenshot: pngOf(t, 4, 4)},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 10)
	for i, c := range core.Categories() {
		require.Equal(t, c, results[i].Category)
		require.Equal(t, core.MaxScore, results[i].Score, "scores are clamped")
		require.Equal(t, core.SourceAI, results[i].Source)
		require.Equal(t, c != core.CategoryPerformance, core.HasProof(results[i].Evidence), "performance evidence is measured, not cited")
		require.Equal(t, []string{"Fix " + string(c)}, results[i].Insights)
	}

	require.Equal(t, DefaultPromptSlug, svc.seen.PromptSlug)
	require.Equal(t, DefaultRole, svc.seen.Role)
	require.Equal(t, DefaultTier, svc.seen.Tier)
	require.Equal(t, "shopify", svc.seen.Variables["platform"])
	require.Equal(t, "<html></html>", svc.seen.Variables["html"])
	require.Len(t, svc.seen.Images, 2, "failed flow steps are not attached")
	require.Equal(t, "image/jpeg", svc.seen.Images[0].MIME, "wide screenshots are downscaled")
	require.Equal(t, "image/png", svc.seen.Images[1].MIME)
}

func TestVisionGraderOmitsUnknownPlatform(t *testing.T) {
	svc := &fakeService{raw: fullPayload(5, "")}
	g := &VisionGrader{Service: svc}
	_, err := g.Grade(context.Background(), Input{URL: "https://a.example", Platform: core.PlatformUnknown})
	require.NoError(t, err)
	_, ok := svc.seen.Variables["platform"]
	require.False(t, ok)
	require.Empty(t, svc.seen.Images)
}

func TestVisionGraderPropagatesServiceErrors(t *testing.T) {
	g := &VisionGrader{Service: &fakeService{err: errors.New("provider down")}}
	_, err := g.Grade(context.Background(), Input{URL: "https://a.example"})
	require.ErrorContains(t, err, "provider down")

	_, err = (&VisionGrader{}).Grade(context.Background(), Input{})
	require.ErrorContains(t, err, "not configured")
}

func TestVisionGraderRejectsBrokenFirstScreenshot(t *testing.T) {
	g := &VisionGrader{Service: &fakeService{raw: fullPayload(5, "")}}
	_, err := g.Grade(context.Background(), Input{URL: "https://a.example", Screenshot: []byte("not an image")})
	require.ErrorContains(t, err, "prepare screenshot")
}

func TestDecodeRequiresExactCategorySet(t *testing.T) {
	_, err := Decode([]byte(fullPayload(5, core.CategoryVisuals)))
	require.ErrorContains(t, err, `missing category "visuals"`)

	_, err = Decode([]byte(`{"categories":[{"id":"colour","score":1}]}`))
	require.ErrorContains(t, err, "unknown category")

	dup := `{"categories":[{"id":"navigation","score":1},{"id":"navigation","score":2}]}`
	_, err = Decode([]byte(dup))
	require.ErrorContains(t, err, "repeats category")

	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestDecodeKeepsEmptyProofAbsent(t *testing.T) {
	payload := strings.ReplaceAll(fullPayload(4, ""), `"snippet":"<h1>navigation</h1>"`, `"snippet":"  "`)
	results, err := Decode([]byte(payload))
	require.NoError(t, err)
	for _, r := range results {
		want := r.Category != core.CategoryNavigation && r.Category != core.CategoryPerformance
		require.Equal(t, want, core.HasProof(r.Evidence), r.Category)
	}
}

func TestMockGraderIsDeterministic(t *testing.T) {
	in := Input{URL: "https://shop.example/top", HTML: "<html><head><title> Daily   Goods </title></head></html>"}
	first, err := MockGrader{}.Grade(context.Background(), in)
	require.NoError(t, err)
	second, err := MockGrader{}.Grade(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.Len(t, first, 10)
	proof, ok := core.ProofOf(first[1].Evidence)
	require.True(t, ok)
	require.Equal(t, "<title>Daily Goods</title>", proof.Snippet)
	require.Contains(t, first[0].Insights[0], "shop.example")
}

func TestMockGraderWithoutHTMLCitesURL(t *testing.T) {
	results, err := MockGrader{}.Grade(context.Background(), Input{URL: "https://bare.example"})
	require.NoError(t, err)
	proof, _ := core.ProofOf(results[3].Evidence)
	require.Equal(t, "https://bare.example", proof.Snippet)
}
