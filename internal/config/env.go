package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
)

// EnvVarSpec maps {PREFIX}{NAME} to a settings path.
type EnvVarSpec = gfconfig.EnvVarSpec

const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// envGroup binds variable names (without prefix) to keys of one section.
// Durations are read as strings and converted while decoding. Floats are
// parsed here because env specs have no float type.
type envGroup struct {
	section string
	strs    map[string]string
	ints    map[string]string
	bools   map[string]string
	floats  map[string]string
}

var envGroups = []envGroup{
	{section: "server",
		strs: map[string]string{"HOST": "host", "READ_TIMEOUT": "read_timeout", "WRITE_TIMEOUT": "write_timeout", "IDLE_TIMEOUT": "idle_timeout", "SHUTDOWN_TIMEOUT": "shutdown_timeout"},
		ints: map[string]string{"PORT": "port"}},
	{section: "logging",
		strs: map[string]string{"LOG_LEVEL": "level", "LOG_ENVIRONMENT": "environment", "LOG_STREAM": "stream"}},
	{section: "store",
		strs: map[string]string{"DB_DRIVER": "driver", "DB_PATH": "path", "DB_URL": "url", "DB_AUTH_TOKEN": "auth_token"}},
	{section: "workers",
		strs: map[string]string{"WORKER_POLL_INTERVAL": "poll_interval"},
		ints: map[string]string{"WORKERS": "count"}},
	{section: "ailink",
		strs:  map[string]string{"AILINK_DEFAULT_PROVIDER": "default_provider", "AILINK_DEFAULT_TIMEOUT": "default_timeout", "AILINK_PROMPTS_DIR": "prompts_dir"},
		ints:  map[string]string{"AILINK_DEBUG_CAPTURE_RAW_MAX_BYTES": "debug.capture_raw_max_bytes"},
		bools: map[string]string{"AILINK_DEBUG_CAPTURE_RAW_ENABLED": "debug.capture_raw_enabled"}},
	{section: "grader",
		strs: map[string]string{"GRADER_MODE": "mode", "GRADER_MODEL": "model"}},
	{section: "scraper",
		strs:  map[string]string{"SCRAPER_BASE_URL": "base_url", "SCRAPER_API_KEY": "api_key"},
		bools: map[string]string{"SCRAPER_ENABLED": "enabled"}},
	{section: "fetch",
		strs:  map[string]string{"FETCH_USER_AGENT": "user_agent"},
		bools: map[string]string{"FETCH_ENABLED": "enabled"}},
	{section: "performance",
		strs:  map[string]string{"PAGESPEED_API_KEY": "api_key", "PAGESPEED_STRATEGY": "strategy"},
		bools: map[string]string{"PAGESPEED_ENABLED": "enabled"}},
	{section: "scoring",
		floats: map[string]string{"SCORING_DAMPING": "damping"}},
	{section: "report",
		strs:  map[string]string{"REPORT_DIR": "dir", "REPORT_FORMATS": "formats"},
		bools: map[string]string{"REPORT_ENABLED": "enabled"}},
	{section: "events",
		strs:  map[string]string{"REDIS_ADDR": "addr", "REDIS_PASSWORD": "password", "EVENTS_CHANNEL": "channel"},
		ints:  map[string]string{"REDIS_DB": "db"},
		bools: map[string]string{"EVENTS_ENABLED": "enabled"}},
	{section: "metrics",
		ints:  map[string]string{"METRICS_PORT": "port"},
		bools: map[string]string{"METRICS_ENABLED": "enabled"}},
	{section: "health",
		bools: map[string]string{"HEALTH_ENABLED": "enabled"}},
	{section: "debug",
		bools: map[string]string{"DEBUG_ENABLED": "enabled", "DEBUG_PPROF_ENABLED": "pprof_enabled"}},
	// Top-level keys.
	{floats: map[string]string{"RATE_LIMIT_MARGIN": "rate_limit_margin"}},
}

// loadEnvOverrides returns the environment layer as a settings map.
func loadEnvOverrides() (map[string]any, error) {
	overrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if overrides == nil {
		overrides = map[string]any{}
	}
	prefix := envPrefix()
	applyAILinkDynamicEnvOverrides(prefix, overrides)
	if err := applyFloatEnvOverrides(prefix, overrides); err != nil {
		return nil, err
	}
	return overrides, nil
}

func (g envGroup) path(key string) []string {
	parts := strings.Split(key, ".")
	if g.section == "" {
		return parts
	}
	return append([]string{g.section}, parts...)
}

// getEnvSpecs returns the typed env specs, sorted by name.
func getEnvSpecs() []EnvVarSpec {
	prefix := envPrefix()
	var specs []EnvVarSpec
	for _, g := range envGroups {
		for name, key := range g.strs {
			specs = append(specs, EnvVarSpec{Name: prefix + name, Path: g.path(key), Type: EnvString})
		}
		for name, key := range g.ints {
			specs = append(specs, EnvVarSpec{Name: prefix + name, Path: g.path(key), Type: EnvInt})
		}
		for name, key := range g.bools {
			specs = append(specs, EnvVarSpec{Name: prefix + name, Path: g.path(key), Type: EnvBool})
		}
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

func applyFloatEnvOverrides(prefix string, overrides map[string]any) error {
	for _, g := range envGroups {
		for name, key := range g.floats {
			raw := strings.TrimSpace(os.Getenv(prefix + name))
			if raw == "" {
				continue
			}
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", strings.ToLower(name), err)
			}
			setPath(overrides, value, g.path(key)...)
		}
	}
	return nil
}

// providerField is a scalar provider setting addressed by trailing tokens,
// e.g. ..._VISION_OPENAI_BASE_URL.
type providerField struct {
	tokens string
	key    string
	value  func(string) any
}

var providerFields = []providerField{
	{tokens: "ENABLED", key: "enabled", value: envBool},
	{tokens: "AI_PROVIDER", key: "ai_provider", value: envLower},
	{tokens: "DEFAULT_CREDENTIAL", key: "default_credential", value: envTrim},
	{tokens: "SELECTION_POLICY", key: "selection_policy", value: envLower},
	{tokens: "BASE_URL", key: "base_url", value: envTrim},
}

func envTrim(v string) any  { return strings.TrimSpace(v) }
func envLower(v string) any { return strings.ToLower(strings.TrimSpace(v)) }
func envBool(v string) any  { return strings.EqualFold(strings.TrimSpace(v), "true") }

// applyAILinkDynamicEnvOverrides reads provider and routing settings whose
// names embed a provider id or role:
//
//	{PREFIX}AILINK_PROVIDERS_<ID>_<FIELD>
//	{PREFIX}AILINK_PROVIDERS_<ID>_MODELS_<TIER>
//	{PREFIX}AILINK_PROVIDERS_<ID>_CREDENTIALS_<N>_<FIELD>
//	{PREFIX}AILINK_ROUTING_<ROLE>
//
// Underscores in ids and roles become dashes.
func applyAILinkDynamicEnvOverrides(prefix string, overrides map[string]any) {
	providerPrefix := prefix + "AILINK_PROVIDERS_"
	routingPrefix := prefix + "AILINK_ROUTING_"

	for _, item := range os.Environ() {
		key, value, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(key, providerPrefix); ok {
			applyProviderEnv(overrides, strings.Split(rest, "_"), value)
		} else if rest, ok := strings.CutPrefix(key, routingPrefix); ok {
			if role := toSlug(rest); role != "" {
				setPath(overrides, strings.TrimSpace(value), "ailink", "routing", role)
			}
		}
	}
}

// applyProviderEnv splits parts at the first position whose tail names a
// known setting; everything before it is the provider id.
func applyProviderEnv(overrides map[string]any, parts []string, value string) {
	for i := 1; i < len(parts); i++ {
		id := toSlug(strings.Join(parts[:i], "_"))
		tail := parts[i:]
		base := []string{"ailink", "providers", id}

		for _, f := range providerFields {
			if strings.Join(tail, "_") == f.tokens {
				setPath(overrides, f.value(value), append(base, f.key)...)
				return
			}
		}

		switch tail[0] {
		case "MODELS":
			if len(tail) > 1 {
				setPath(overrides, strings.TrimSpace(value), append(base, "models", strings.ToLower(strings.Join(tail[1:], "_")))...)
				return
			}
		case "CREDENTIALS":
			if len(tail) > 2 {
				if idx, err := strconv.Atoi(tail[1]); err == nil && idx >= 0 {
					setCredential(setPath(overrides, nil, base...), idx, strings.ToLower(strings.Join(tail[2:], "_")), value)
					return
				}
			}
		}
	}
}

func setCredential(provider map[string]any, idx int, field, value string) {
	creds, _ := provider["credentials"].([]any)
	for len(creds) <= idx {
		creds = append(creds, map[string]any{})
	}
	provider["credentials"] = creds

	cred, ok := creds[idx].(map[string]any)
	if !ok {
		cred = map[string]any{}
		creds[idx] = cred
	}
	value = strings.TrimSpace(value)
	switch field {
	case "priority":
		if n, err := strconv.Atoi(value); err == nil {
			cred[field] = n
			return
		}
		cred[field] = value
	case "enabled":
		cred[field] = envBool(value)
	default:
		cred[field] = value
	}
}

// setPath stores value at path, creating maps on the way, and returns the
// map holding the last key. A nil value only creates the maps, including
// the last one, and returns it.
func setPath(root map[string]any, value any, path ...string) map[string]any {
	node := root
	last := len(path) - 1
	if value == nil {
		last = len(path)
	}
	for _, key := range path[:last] {
		child, ok := node[key].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[key] = child
		}
		node = child
	}
	if value != nil {
		node[path[last]] = value
	}
	return node
}

func toSlug(raw string) string {
	var parts []string
	for _, part := range strings.Split(strings.TrimSpace(raw), "_") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "-")
}
