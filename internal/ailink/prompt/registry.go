package prompt

import (
	"fmt"
	"sort"
	"strings"
)

// Registry provides access to prompt definitions.
type Registry interface {
	Get(slug string) (*Prompt, error)
	List() []*Prompt
}

// InMemoryRegistry stores prompts by lowercase slug.
type InMemoryRegistry struct {
	prompts map[string]*Prompt
}

// NewRegistry builds a registry from prompts. Two prompts with one slug are
// an error.
func NewRegistry(prompts []*Prompt) (*InMemoryRegistry, error) {
	reg := &InMemoryRegistry{prompts: make(map[string]*Prompt, len(prompts))}
	if err := reg.add(prompts, false); err != nil {
		return nil, err
	}
	return reg, nil
}

// override replaces prompts by slug. Duplicates within prompts still fail.
func (r *InMemoryRegistry) override(prompts []*Prompt) error {
	return r.add(prompts, true)
}

func (r *InMemoryRegistry) add(prompts []*Prompt, replace bool) error {
	seen := make(map[string]struct{}, len(prompts))
	for _, p := range prompts {
		if p == nil {
			continue
		}
		slug := normalizeSlug(p.Config.Slug)
		if slug == "" {
			return fmt.Errorf("prompt %s missing slug", p.Source)
		}
		_, dupInBatch := seen[slug]
		_, exists := r.prompts[slug]
		if dupInBatch || (exists && !replace) {
			return fmt.Errorf("duplicate prompt slug: %s", slug)
		}
		seen[slug] = struct{}{}
		r.prompts[slug] = p
	}
	return nil
}

// Get returns the prompt for the slug.
func (r *InMemoryRegistry) Get(slug string) (*Prompt, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry not configured")
	}
	slug = normalizeSlug(slug)
	if slug == "" {
		return nil, fmt.Errorf("prompt slug is required")
	}
	if p, ok := r.prompts[slug]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("prompt %q not found (available: %s)", slug, strings.Join(r.slugs(), ", "))
}

// List returns prompts sorted by slug.
func (r *InMemoryRegistry) List() []*Prompt {
	if r == nil {
		return nil
	}
	slugs := r.slugs()
	out := make([]*Prompt, len(slugs))
	for i, slug := range slugs {
		out[i] = r.prompts[slug]
	}
	return out
}

func (r *InMemoryRegistry) slugs() []string {
	keys := make([]string, 0, len(r.prompts))
	for slug := range r.prompts {
		keys = append(keys, slug)
	}
	sort.Strings(keys)
	return keys
}

func normalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
