package prompt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fulmenhq/gofulmen/schema"
	"gopkg.in/yaml.v3"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

const fence = "---"

// Load parses a prompt from markdown with YAML frontmatter, or from a bare
// YAML document. The markdown body becomes the system template when the
// frontmatter declares none.
func Load(source string, data []byte) (*Prompt, error) {
	cfg, err := parsePrompt(data)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", source, err)
	}
	if strings.TrimSpace(cfg.SystemTemplate) == "" {
		return nil, fmt.Errorf("prompt %s missing system_template", source)
	}
	compiled, err := validateConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("validate prompt %s: %w", source, err)
	}
	return &Prompt{Config: cfg, Source: source, Schema: compiled}, nil
}

// LoadFromDir reads every *.md prompt in dir.
func LoadFromDir(dir string) ([]*Prompt, error) {
	return loadFS(os.DirFS(dir), func(name string) string { return filepath.Join(dir, name) })
}

// loadFS loads the *.md files at the root of fsys in name order.
func loadFS(fsys fs.FS, source func(name string) string) ([]*Prompt, error) {
	names, err := fs.Glob(fsys, "*.md")
	if err != nil {
		return nil, fmt.Errorf("scan prompts: %w", err)
	}
	prompts := make([]*Prompt, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", source(name), err)
		}
		p, err := Load(source(name), data)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}

func parsePrompt(data []byte) (Config, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Config{}, errors.New("empty prompt")
	}

	var cfg Config
	front, body, fenced := splitFrontmatter(string(trimmed))
	if !fenced {
		if err := yaml.Unmarshal(trimmed, &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid yaml: %w", err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal([]byte(front), &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid frontmatter: %w", err)
	}
	if strings.TrimSpace(cfg.SystemTemplate) == "" {
		cfg.SystemTemplate = strings.TrimSpace(body)
	}
	return cfg, nil
}

// splitFrontmatter separates a leading fenced YAML block from the body. An
// unclosed fence makes the whole remainder frontmatter.
func splitFrontmatter(doc string) (front, body string, fenced bool) {
	lines := strings.Split(doc, "\n")
	if strings.TrimSpace(lines[0]) != fence {
		return "", doc, false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == fence {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), true
		}
	}
	return strings.Join(lines[1:], "\n"), "", true
}

// validateConfig checks structure and compiles the response schema, returning
// the schema as JSON bytes.
func validateConfig(cfg Config) ([]byte, error) {
	if !slugPattern.MatchString(strings.TrimSpace(cfg.Slug)) {
		return nil, fmt.Errorf("invalid slug %q", cfg.Slug)
	}
	for _, v := range cfg.Input.RequiredVariables {
		if strings.TrimSpace(v) == "" {
			return nil, errors.New("empty required variable")
		}
	}
	switch {
	case cfg.Input.MaxImages < 0:
		return nil, errors.New("max_images must not be negative")
	case !cfg.Input.AcceptsImages && cfg.Input.MaxImages > 0:
		return nil, errors.New("max_images set but accepts_images is false")
	}
	if len(cfg.ResponseSchema) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(cfg.ResponseSchema)
	if err != nil {
		return nil, fmt.Errorf("encode response schema: %w", err)
	}
	if _, err := schema.NewValidator(payload); err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}
	return payload, nil
}
