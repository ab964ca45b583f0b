package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

//go:embed prompts/*.md
var defaultPromptsFS embed.FS

// LoadDefaults loads the embedded prompt set.
func LoadDefaults() ([]*Prompt, error) {
	sub, err := fs.Sub(defaultPromptsFS, "prompts")
	if err != nil {
		return nil, fmt.Errorf("read embedded prompts: %w", err)
	}
	return loadFS(sub, embeddedSource)
}

func embeddedSource(name string) string {
	return path.Join("embedded", name)
}

// DefaultRegistry builds a registry from embedded prompts, overlaid with
// prompts from dir when dir is set. A prompt in dir replaces the embedded
// prompt with the same slug.
func DefaultRegistry(dir string) (Registry, error) {
	prompts, err := LoadDefaults()
	if err != nil {
		return nil, err
	}
	reg, err := NewRegistry(prompts)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dir) == "" {
		return reg, nil
	}
	overrides, err := LoadFromDir(dir)
	if err != nil {
		return nil, err
	}
	if err := reg.override(overrides); err != nil {
		return nil, err
	}
	return reg, nil
}
