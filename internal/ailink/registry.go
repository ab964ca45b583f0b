package ailink

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/storelens/storelens/internal/ailink/driver"
	"github.com/storelens/storelens/internal/ailink/driver/openai"
	"github.com/storelens/storelens/internal/ailink/driver/xai"
	"github.com/storelens/storelens/internal/ailink/prompt"
)

// Both supported providers speak the chat completions wire shape.
var clientFactories = map[string]func(baseURL, apiKey string) *openai.Client{
	"openai": openai.NewClient,
	"xai":    xai.NewClient,
}

// Registry routes a role to a provider instance and caches one driver per
// provider credential.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	drivers map[string]driver.Driver
	rr      map[string]int
}

// ResolvedProvider is a provider ready to serve a single request.
type ResolvedProvider struct {
	ProviderID string
	Provider   ProviderInstanceConfig
	Credential CredentialConfig
	Driver     driver.Driver
	Model      string
	BaseURL    string
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

// Resolve picks the provider for role and the model for tier.
func (r *Registry) Resolve(role string, promptDef *prompt.Prompt, modelOverride, tier string) (*ResolvedProvider, error) {
	if r == nil {
		return nil, fmt.Errorf("ailink registry not configured")
	}
	id, err := r.routeRole(strings.TrimSpace(role))
	if err != nil {
		return nil, err
	}
	return r.resolveInstance(id, promptDef, modelOverride, tier)
}

// ResolveChain returns the routed provider followed by the role's configured
// fallbacks. Fallbacks that are unknown, disabled or unresolvable are skipped.
func (r *Registry) ResolveChain(role string, promptDef *prompt.Prompt, modelOverride, tier string) ([]*ResolvedProvider, error) {
	primary, err := r.Resolve(role, promptDef, modelOverride, tier)
	if err != nil {
		return nil, err
	}
	chain := []*ResolvedProvider{primary}
	for _, id := range r.cfg.Fallbacks[strings.TrimSpace(role)] {
		id = strings.TrimSpace(id)
		if id == "" || inChain(chain, id) || !r.cfg.Providers[id].Enabled {
			continue
		}
		// The override names a model of the primary provider only.
		if resolved, err := r.resolveInstance(id, promptDef, "", tier); err == nil {
			chain = append(chain, resolved)
		}
	}
	return chain, nil
}

func inChain(chain []*ResolvedProvider, id string) bool {
	for _, p := range chain {
		if p.ProviderID == id {
			return true
		}
	}
	return false
}

// routeRole applies, in order: explicit routing, the first enabled provider
// (by id) that lists the role, the default provider, and the only enabled
// provider.
func (r *Registry) routeRole(role string) (string, error) {
	if role != "" {
		if id := strings.TrimSpace(r.cfg.Routing[role]); id != "" {
			return id, r.usable(id, fmt.Sprintf("for role %q", role))
		}
		for _, id := range r.enabledIDs() {
			if contains(r.cfg.Providers[id].Roles, role) {
				return id, nil
			}
		}
	}

	if id := strings.TrimSpace(r.cfg.DefaultProvider); id != "" {
		return id, r.usable(id, "as default")
	}

	enabled := r.enabledIDs()
	switch len(enabled) {
	case 0:
		return "", fmt.Errorf("no enabled providers configured")
	case 1:
		return enabled[0], nil
	default:
		return "", fmt.Errorf("no provider routing configured for role %q among %s", role, strings.Join(enabled, ", "))
	}
}

func (r *Registry) usable(id, purpose string) error {
	cfg, ok := r.cfg.Providers[id]
	if !ok {
		return fmt.Errorf("provider %q configured %s is unknown", id, purpose)
	}
	if !cfg.Enabled {
		return fmt.Errorf("provider %q configured %s is disabled", id, purpose)
	}
	return nil
}

func (r *Registry) enabledIDs() []string {
	ids := make([]string, 0, len(r.cfg.Providers))
	for id, cfg := range r.cfg.Providers {
		if cfg.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) resolveInstance(id string, promptDef *prompt.Prompt, modelOverride, tier string) (*ResolvedProvider, error) {
	providerCfg := r.cfg.Providers[id]
	cred, credKey, err := selectCredential(providerCfg, func(group string, n int) int {
		return r.rrIndex(id+":"+group, n)
	})
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", id, err)
	}

	drv, err := r.driverFor(id, providerCfg, cred, credKey)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(providerCfg.BaseURL)
	if client, ok := drv.(*openai.Client); ok {
		baseURL = client.BaseURL
	}

	model, err := resolveModel(providerCfg, promptDef, modelOverride, tier)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", id, err)
	}

	return &ResolvedProvider{
		ProviderID: id,
		Provider:   providerCfg,
		Credential: cred,
		Driver:     drv,
		Model:      model,
		BaseURL:    baseURL,
	}, nil
}

func (r *Registry) driverFor(id string, providerCfg ProviderInstanceConfig, cred CredentialConfig, credKey string) (driver.Driver, error) {
	key := id
	if credKey != "" {
		key += ":" + credKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if drv, ok := r.drivers[key]; ok {
		return drv, nil
	}

	kind := strings.ToLower(strings.TrimSpace(providerCfg.AIProvider))
	factory, ok := clientFactories[kind]
	if !ok {
		if kind == "" {
			kind = "(unset)"
		}
		return nil, fmt.Errorf("unsupported ai_provider %q for provider %q", kind, id)
	}
	client := factory(providerCfg.BaseURL, cred.APIKey)
	client.Timeout = r.cfg.DefaultTimeout
	if r.drivers == nil {
		r.drivers = make(map[string]driver.Driver)
	}
	r.drivers[key] = client
	return client, nil
}

// resolveModel picks, in order: the explicit override, the provider's model
// for tier, the prompt's first preferred model, and the provider default.
func resolveModel(providerCfg ProviderInstanceConfig, promptDef *prompt.Prompt, override, tier string) (string, error) {
	if model := strings.TrimSpace(override); model != "" {
		return model, nil
	}
	if tier = strings.ToLower(strings.TrimSpace(tier)); tier != "" && tier != "default" {
		if model := strings.TrimSpace(providerCfg.Models[tier]); model != "" {
			return model, nil
		}
	}
	for _, model := range preferredModels(promptDef) {
		if model = strings.TrimSpace(model); model != "" {
			return model, nil
		}
	}
	if model := strings.TrimSpace(providerCfg.Models["default"]); model != "" {
		return model, nil
	}
	return "", fmt.Errorf("model not configured")
}

// preferredModels reads the prompt's preferred_models hint, which YAML may
// decode as a string or a list.
func preferredModels(promptDef *prompt.Prompt) []string {
	if promptDef == nil {
		return nil
	}
	switch typed := promptDef.Config.ProviderHints["preferred_models"].(type) {
	case []string:
		return typed
	case []any:
		models := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				models = append(models, s)
			}
		}
		return models
	case string:
		return []string{typed}
	default:
		return nil
	}
}

func (r *Registry) rrIndex(key string, n int) int {
	if r == nil || n <= 1 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rr == nil {
		r.rr = make(map[string]int)
	}
	idx := r.rr[key] % n
	r.rr[key]++
	return idx
}

func contains(values []string, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), needle) {
			return true
		}
	}
	return false
}
