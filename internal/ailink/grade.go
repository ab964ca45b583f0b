package ailink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/schema"
	"github.com/storelens/storelens/internal/ailink/content"
	"github.com/storelens/storelens/internal/ailink/driver"
	"github.com/storelens/storelens/internal/ailink/prompt"
)

const (
	defaultTimeout = 90 * time.Second
	maxTimeout     = 5 * time.Minute
)

// Service coordinates prompt loading, provider selection, and driver execution.
type Service struct {
	Providers *Registry
	Registry  prompt.Registry
}

// Grade renders the prompt, attaches images, and returns the provider's
// schema-valid JSON. Retryable provider failures move on to the role's
// fallback providers; the last failure is returned as a *ProviderFailure.
func (s *Service) Grade(ctx context.Context, req GradeRequest) (*GradeResponse, error) {
	if s == nil || s.Providers == nil {
		return nil, errors.New("ailink provider registry not configured")
	}
	if s.Registry == nil {
		return nil, errors.New("ailink prompt registry not configured")
	}

	slug := strings.TrimSpace(req.PromptSlug)
	if slug == "" {
		return nil, errors.New("prompt slug is required")
	}

	promptDef, err := s.Registry.Get(slug)
	if err != nil {
		return nil, err
	}

	messages, err := buildMessages(promptDef, req)
	if err != nil {
		return nil, err
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = slug
	}
	chain, err := s.Providers.ResolveChain(role, promptDef, req.Model, req.Tier)
	if err != nil {
		return nil, err
	}

	var failure *ProviderFailure
	for _, resolved := range chain {
		resp, err := s.complete(ctx, resolved, promptDef, messages, req.Timeout)
		if err == nil {
			return s.finish(promptDef, resolved, resp, req.IncludeRaw)
		}
		failure = mapProviderError(err)
		if !failure.Retryable() || ctx.Err() != nil {
			break
		}
	}
	return nil, failure
}

func (s *Service) complete(ctx context.Context, resolved *ResolvedProvider, def *prompt.Prompt, messages []content.Message, timeout time.Duration) (*driver.Response, error) {
	driverReq := &driver.Request{
		Model:          resolved.Model,
		Messages:       messages,
		ResponseFormat: responseFormatForProvider(resolved, def),
		PromptSlug:     def.Config.Slug,
	}
	if driverReq.HasImages() && !resolved.Driver.Capabilities().SupportsImages {
		return nil, fmt.Errorf("provider %q does not accept images", resolved.ProviderID)
	}

	ctx, cancel := context.WithTimeout(ctx, gradeTimeout(s.Providers.cfg.DefaultTimeout, timeout))
	defer cancel()

	resp, err := resolved.Driver.Complete(ctx, driverReq)
	if err != nil && driverReq.ResponseFormat.Type == formatJSONSchema && isUnsupportedSchemaError(err) {
		fallbackToJSONObject(driverReq)
		resp, err = resolved.Driver.Complete(ctx, driverReq)
	}
	return resp, err
}

func (s *Service) finish(def *prompt.Prompt, resolved *ResolvedProvider, resp *driver.Response, includeRaw bool) (*GradeResponse, error) {
	raw := strings.TrimSpace(extractContent(resp))
	if raw == "" {
		return nil, errors.New("empty response content")
	}
	raw = stripCodeFence(raw)

	if err := validateResponse(def, []byte(raw)); err != nil {
		return nil, &RawResponseError{
			Provider: resolved.ProviderID,
			Model:    resolved.Model,
			Err:      err,
			Raw:      captureRaw(s.Providers.cfg.Debug, includeRaw, []byte(raw)),
		}
	}

	out := &GradeResponse{
		Raw:      json.RawMessage(raw),
		Provider: resolved.ProviderID,
		Model:    resolved.Model,
	}
	if resp.Usage != nil {
		out.Usage = &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// buildMessages checks the prompt's required variables and renders the
// system and user messages, screenshots attached to the user message.
func buildMessages(def *prompt.Prompt, req GradeRequest) ([]content.Message, error) {
	for _, name := range def.Config.Input.RequiredVariables {
		if strings.TrimSpace(req.Variables[name]) == "" {
			return nil, fmt.Errorf("required variable %q not provided", name)
		}
	}
	system, user, err := renderPrompt(def, req.Variables)
	if err != nil {
		return nil, err
	}
	blocks, err := userContent(def, user, req.Images)
	if err != nil {
		return nil, err
	}
	return []content.Message{
		{Role: "system", Content: []content.ContentBlock{content.Text(system)}},
		{Role: "user", Content: blocks},
	}, nil
}

// gradeTimeout picks the request timeout over the configured default and
// caps both at maxTimeout.
func gradeTimeout(configured, requested time.Duration) time.Duration {
	d := configured
	if requested > 0 {
		d = requested
	}
	if d <= 0 {
		d = defaultTimeout
	}
	return min(d, maxTimeout)
}

func userContent(def *prompt.Prompt, text string, images []Image) ([]content.ContentBlock, error) {
	blocks := []content.ContentBlock{content.Text(text)}
	if len(images) == 0 {
		return blocks, nil
	}
	input := def.Config.Input
	if !input.AcceptsImages {
		return nil, fmt.Errorf("prompt %q does not accept images", def.Config.Slug)
	}
	if input.MaxImages > 0 && len(images) > input.MaxImages {
		images = images[:input.MaxImages]
	}
	for i, img := range images {
		if len(img.Data) == 0 {
			return nil, fmt.Errorf("image %d is empty", i)
		}
		if len(input.ImageTypes) > 0 && !contains(input.ImageTypes, img.MIME) {
			return nil, fmt.Errorf("image %d has unsupported type %q", i, img.MIME)
		}
		blocks = append(blocks, content.Image(img.MIME, img.Data))
	}
	return blocks, nil
}

func extractContent(resp *driver.Response) string {
	if resp == nil || len(resp.Content) == 0 {
		return ""
	}
	parts := make([]string, 0, len(resp.Content))
	for _, block := range resp.Content {
		parts = append(parts, block.Text)
	}
	return strings.Join(parts, "\n")
}

// stripCodeFence unwraps ```json fenced payloads some models emit in json_object mode.
func stripCodeFence(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```")
	if nl := strings.IndexByte(raw, '\n'); nl >= 0 {
		raw = raw[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "```"))
}

func validateResponse(def *prompt.Prompt, payload []byte) error {
	if !json.Valid(payload) {
		return errors.New("response is not valid JSON")
	}
	if def == nil || len(def.Schema) == 0 {
		return nil
	}
	validator, err := compiledSchema(def, schema.NewValidator)
	if err != nil {
		return err
	}
	diagnostics, err := validator.ValidateJSON(payload)
	if err != nil {
		return err
	}
	if len(diagnostics) > 0 {
		return fmt.Errorf("response schema validation failed: %s", diagnostics[0].Message)
	}
	return nil
}

// Compiled validators keyed by prompt. Prompts are immutable once loaded.
var validators sync.Map

func compiledSchema[V any](def *prompt.Prompt, compile func([]byte) (V, error)) (V, error) {
	if v, ok := validators.Load(def); ok {
		return v.(V), nil
	}
	v, err := compile(def.Schema)
	if err != nil {
		return v, fmt.Errorf("compile response schema: %w", err)
	}
	actual, _ := validators.LoadOrStore(def, v)
	return actual.(V), nil
}
