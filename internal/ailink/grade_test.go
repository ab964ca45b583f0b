package ailink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storelens/storelens/internal/ailink/content"
	"github.com/storelens/storelens/internal/ailink/driver"
	"github.com/storelens/storelens/internal/ailink/prompt"
)

type recordingDriver struct {
	name   string
	schema bool

	mu       sync.Mutex
	requests []*driver.Request
	replies  []func(*driver.Request) (*driver.Response, error)
}

func (d *recordingDriver) Name() string { return d.name }

func (d *recordingDriver) Capabilities() driver.Capabilities {
	return driver.Capabilities{SupportsImages: true, SupportsJSONSchema: d.schema}
}

func (d *recordingDriver) Complete(_ context.Context, req *driver.Request) (*driver.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *req
	if req.ResponseFormat != nil {
		format := *req.ResponseFormat
		clone.ResponseFormat = &format
	}
	d.requests = append(d.requests, &clone)
	if len(d.replies) == 0 {
		return nil, errors.New("no reply queued")
	}
	reply := d.replies[0]
	d.replies = d.replies[1:]
	return reply(req)
}

func textReply(text string) func(*driver.Request) (*driver.Response, error) {
	return func(*driver.Request) (*driver.Response, error) {
		return &driver.Response{Content: []content.ContentBlock{content.Text(text)}, Usage: &driver.Usage{TotalTokens: 42}}, nil
	}
}

func errReply(err error) func(*driver.Request) (*driver.Response, error) {
	return func(*driver.Request) (*driver.Response, error) { return nil, err }
}

const scoreSchema = `---
slug: score-test
input:
  required_variables: [url]
  accepts_images: true
  image_types: [image/png]
  max_images: 1
user_template: "Grade {{url}}{{#if platform}} on {{platform}}{{/if}}."
response_schema:
  type: object
  required: [score]
  properties:
    score: {type: number, minimum: 0, maximum: 10}
---
You are a grader.`

func gradeService(t *testing.T, primary, backup *recordingDriver) *Service {
	t.Helper()
	p, err := prompt.Load("score.md", []byte(scoreSchema))
	require.NoError(t, err)
	prompts, err := prompt.NewRegistry([]*prompt.Prompt{p})
	require.NoError(t, err)

	reg := NewRegistry(testConfig())
	reg.drivers = map[string]driver.Driver{"primary:main": primary}
	if backup != nil {
		reg.drivers["backup:p0"] = backup
	}
	return &Service{Providers: reg, Registry: prompts}
}

func TestGradeRendersPromptAndAttachesImages(t *testing.T) {
	primary := &recordingDriver{name: "openai", schema: true, replies: []func(*driver.Request) (*driver.Response, error){textReply(`{"score": 7}`)}}
	svc := gradeService(t, primary, nil)

	resp, err := svc.Grade(context.Background(), GradeRequest{
		Role:       "grader",
		PromptSlug: "score-test",
		Variables:  map[string]string{"url": "https://shop.example", "platform": "shopify"},
		Images:     []Image{{MIME: "image/png", Data: []byte{1}}, {MIME: "image/png", Data: []byte{2}}},
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"score": 7}`, string(resp.Raw))
	require.Equal(t, "primary", resp.Provider)
	require.Equal(t, "gpt-4o-mini", resp.Model)
	require.Equal(t, 42, resp.Usage.TotalTokens)

	require.Len(t, primary.requests, 1)
	req := primary.requests[0]
	require.Equal(t, "json_schema", req.ResponseFormat.Type)
	require.Equal(t, "You are a grader.", req.Messages[0].Content[0].Text)
	user := req.Messages[1].Content
	require.Len(t, user, 2, "max_images caps attachments")
	require.Equal(t, "Grade https://shop.example on shopify.", user[0].Text)
	require.Equal(t, content.ContentTypeImagePNG, user[1].Type)
}

func TestGradeRequiresVariables(t *testing.T) {
	svc := gradeService(t, &recordingDriver{name: "openai"}, nil)
	_, err := svc.Grade(context.Background(), GradeRequest{PromptSlug: "score-test"})
	require.ErrorContains(t, err, `required variable "url"`)
}

func TestGradeRejectsUnsupportedImageType(t *testing.T) {
	svc := gradeService(t, &recordingDriver{name: "openai"}, nil)
	_, err := svc.Grade(context.Background(), GradeRequest{
		PromptSlug: "score-test",
		Variables:  map[string]string{"url": "https://a.example"},
		Images:     []Image{{MIME: "image/gif", Data: []byte{1}}},
	})
	require.ErrorContains(t, err, "unsupported type")
}

func TestGradeRetriesAsJSONObjectWhenSchemaRejected(t *testing.T) {
	primary := &recordingDriver{name: "openai", schema: true, replies: []func(*driver.Request) (*driver.Response, error){
		errReply(&driver.ProviderError{Provider: "openai", StatusCode: 400, Message: "response_format json_schema not supported"}),
		textReply("```json\n{\"score\": 3}\n```"),
	}}
	svc := gradeService(t, primary, nil)

	resp, err := svc.Grade(context.Background(), GradeRequest{Role: "grader", PromptSlug: "score-test", Variables: map[string]string{"url": "u"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"score": 3}`, string(resp.Raw))
	require.Len(t, primary.requests, 2)
	require.Equal(t, "json_schema", primary.requests[0].ResponseFormat.Type)
	require.Equal(t, "json_object", primary.requests[1].ResponseFormat.Type)
}

func TestGradeFallsBackOnRetryableFailure(t *testing.T) {
	primary := &recordingDriver{name: "openai", replies: []func(*driver.Request) (*driver.Response, error){
		errReply(&driver.ProviderError{Provider: "openai", StatusCode: 503, Message: "overloaded"}),
	}}
	backup := &recordingDriver{name: "xai", replies: []func(*driver.Request) (*driver.Response, error){textReply(`{"score": 5}`)}}
	svc := gradeService(t, primary, backup)

	resp, err := svc.Grade(context.Background(), GradeRequest{Role: "grader", PromptSlug: "score-test", Variables: map[string]string{"url": "u"}})
	require.NoError(t, err)
	require.Equal(t, "backup", resp.Provider)
	require.Equal(t, "grok-2-vision", resp.Model)
}

func TestGradeStopsOnAuthFailure(t *testing.T) {
	primary := &recordingDriver{name: "openai", replies: []func(*driver.Request) (*driver.Response, error){
		errReply(&driver.ProviderError{Provider: "openai", StatusCode: 401, Message: "bad key"}),
	}}
	backup := &recordingDriver{name: "xai"}
	svc := gradeService(t, primary, backup)

	_, err := svc.Grade(context.Background(), GradeRequest{Role: "grader", PromptSlug: "score-test", Variables: map[string]string{"url": "u"}})
	var failure *ProviderFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, CodeAuth, failure.Code)
	require.Empty(t, backup.requests)
}

func TestGradeReportsSchemaViolation(t *testing.T) {
	primary := &recordingDriver{name: "openai", replies: []func(*driver.Request) (*driver.Response, error){textReply(`{"score": 11}`)}}
	svc := gradeService(t, primary, nil)
	svc.Providers.cfg.Debug = DebugConfig{CaptureRawEnabled: true, CaptureRawMaxBytes: 1024}

	_, err := svc.Grade(context.Background(), GradeRequest{Role: "grader", PromptSlug: "score-test", Variables: map[string]string{"url": "u"}, IncludeRaw: true})
	var rawErr *RawResponseError
	require.ErrorAs(t, err, &rawErr)
	require.ErrorContains(t, err, "schema validation failed")
	require.Equal(t, json.RawMessage(`{"score": 11}`), rawErr.Raw)
}

func TestGradeRejectsNonJSON(t *testing.T) {
	primary := &recordingDriver{name: "openai", replies: []func(*driver.Request) (*driver.Response, error){textReply("I think 7/10")}}
	svc := gradeService(t, primary, nil)

	_, err := svc.Grade(context.Background(), GradeRequest{Role: "grader", PromptSlug: "score-test", Variables: map[string]string{"url": "u"}})
	require.ErrorContains(t, err, "not valid JSON")
}

func TestGradeTimeout(t *testing.T) {
	require.Equal(t, defaultTimeout, gradeTimeout(0, 0))
	require.Equal(t, 30*time.Second, gradeTimeout(30*time.Second, 0))
	require.Equal(t, 5*time.Second, gradeTimeout(30*time.Second, 5*time.Second))
	require.Equal(t, maxTimeout, gradeTimeout(time.Hour, 0))
	require.Equal(t, maxTimeout, gradeTimeout(0, time.Hour))
}

func TestCompiledSchemaIsCachedPerPrompt(t *testing.T) {
	p, err := prompt.Load("score.md", []byte(scoreSchema))
	require.NoError(t, err)

	calls := 0
	compile := func(b []byte) (string, error) {
		calls++
		return string(b), nil
	}
	first, err := compiledSchema(p, compile)
	require.NoError(t, err)
	second, err := compiledSchema(p, compile)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, calls)

	bad := &prompt.Prompt{Schema: []byte("{")}
	_, err = compiledSchema(bad, func([]byte) (string, error) { return "", errors.New("boom") })
	require.ErrorContains(t, err, "compile response schema")
}

func TestRenderTemplate(t *testing.T) {
	vars := map[string]string{"a": "x", "empty": " ", "html": "<p>{{a}}</p>"}
	require.Equal(t, "yes", renderTemplate("{{#if a}}yes{{else}}no{{/if}}", vars))
	require.Equal(t, "no", renderTemplate("{{#if empty}}yes{{else}}no{{/if}}", vars))
	require.Equal(t, "[in]", renderTemplate("{{#if a}}[{{#if a}}in{{/if}}]{{/if}}", vars))
	require.Equal(t, "", renderTemplate("{{#if missing}}gone{{/if}}", vars))
	require.Equal(t, "x and {{nope}}", renderTemplate("{{ a }} and {{nope}}", vars))
	require.Equal(t, "<p>{{a}}</p>", renderTemplate("{{html}}", vars))
	require.Equal(t, "{{#if a}}open x", renderTemplate("{{#if a}}open {{a}}", vars))
	require.Equal(t, "stray {{/if}} {{", renderTemplate("stray {{/if}} {{", vars))
}
