package platform

import (
	"fmt"
	"strings"

	"github.com/storelens/storelens/internal/core"
)

// Channel is where in the page a signal is looked for.
type Channel string

const (
	// ChannelHost matches the URL host by equality or dot suffix.
	ChannelHost Channel = "host"
	// ChannelScript matches script, stylesheet and resource URLs.
	ChannelScript Channel = "script"
	// ChannelMarkup matches class and id attribute values.
	ChannelMarkup Channel = "markup"
	// ChannelCookie matches cookie names and response header names.
	ChannelCookie Channel = "cookie"
)

// Signal is one fingerprint with a fixed weight.
type Signal struct {
	Channel Channel `mapstructure:"channel" yaml:"channel"`
	Pattern string  `mapstructure:"pattern" yaml:"pattern"`
	Weight  float64 `mapstructure:"weight" yaml:"weight"`
}

// Name is the identifier reported in detection results.
func (s Signal) Name() string {
	return string(s.Channel) + ":" + s.Pattern
}

// PlatformRule lists the fingerprints of one platform.
type PlatformRule struct {
	Name    core.Platform `mapstructure:"name" yaml:"name"`
	Signals []Signal      `mapstructure:"signals" yaml:"signals"`
}

// Rules is the full signal table.
type Rules struct {
	Threshold float64        `mapstructure:"threshold" yaml:"threshold"`
	Platforms []PlatformRule `mapstructure:"platforms" yaml:"platforms"`
}

// DefaultThreshold is the minimum winning score for a positive label.
const DefaultThreshold = 0.5

// DefaultRules returns the built-in shopify and ecforce fingerprints.
func DefaultRules() Rules {
	return Rules{
		Threshold: DefaultThreshold,
		Platforms: []PlatformRule{
			{
				Name: core.PlatformShopify,
				Signals: []Signal{
					{Channel: ChannelHost, Pattern: "myshopify.com", Weight: 0.25},
					{Channel: ChannelScript, Pattern: "cdn.shopify.com", Weight: 0.5},
					{Channel: ChannelMarkup, Pattern: "shopify-section", Weight: 0.25},
					{Channel: ChannelCookie, Pattern: "_shopify_y", Weight: 0.25},
				},
			},
			{
				Name: core.PlatformEcforce,
				Signals: []Signal{
					{Channel: ChannelHost, Pattern: "ecforce.jp", Weight: 0.25},
					{Channel: ChannelScript, Pattern: "ec-force", Weight: 0.5},
					{Channel: ChannelMarkup, Pattern: "ecforce-", Weight: 0.25},
					{Channel: ChannelCookie, Pattern: "_ecforce_session", Weight: 0.25},
				},
			},
		},
	}
}

// Validate rejects tables the decision rule cannot use.
func (r Rules) Validate() error {
	if r.Threshold <= 0 || r.Threshold > 1 {
		return fmt.Errorf("platform threshold must be in (0,1], got %v", r.Threshold)
	}
	if len(r.Platforms) == 0 {
		return fmt.Errorf("no platforms configured")
	}
	seen := make(map[core.Platform]struct{}, len(r.Platforms))
	for _, p := range r.Platforms {
		name := core.Platform(strings.ToLower(strings.TrimSpace(string(p.Name))))
		if name == "" || name == core.PlatformUnknown {
			return fmt.Errorf("invalid platform name %q", p.Name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate platform %q", name)
		}
		seen[name] = struct{}{}
		total := 0.0
		for _, s := range p.Signals {
			total += s.Weight
			switch s.Channel {
			case ChannelHost, ChannelScript, ChannelMarkup, ChannelCookie:
			default:
				return fmt.Errorf("platform %s: unknown channel %q", name, s.Channel)
			}
			if strings.TrimSpace(s.Pattern) == "" {
				return fmt.Errorf("platform %s: empty %s pattern", name, s.Channel)
			}
			if s.Weight <= 0 {
				return fmt.Errorf("platform %s: signal %s must have positive weight", name, s.Name())
			}
		}
		// Every signal present must be able to reach a confident label.
		if total < 1 {
			return fmt.Errorf("platform %s: signal weights sum to %.2f, want at least 1.0", name, total)
		}
	}
	return nil
}
