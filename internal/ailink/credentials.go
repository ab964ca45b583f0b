package ailink

import (
	"fmt"
	"strconv"
	"strings"
)

const policyRoundRobin = "round_robin"

// selectCredential returns the credential to use and the key its client is
// cached under. Only the highest-priority usable credentials compete;
// round_robin rotates among them through next.
func selectCredential(cfg ProviderInstanceConfig, next func(group string, n int) int) (CredentialConfig, string, error) {
	if len(cfg.Credentials) == 0 {
		return CredentialConfig{}, "", fmt.Errorf("no credentials configured")
	}

	usable := usableCredentials(cfg.Credentials)
	if len(usable) == 0 {
		// Hand back the first entry so the driver reports the missing key.
		first := cfg.Credentials[0]
		return first, credentialKey(first, "0"), nil
	}

	if label := strings.TrimSpace(cfg.DefaultCredential); label != "" {
		for _, cred := range usable {
			if strings.EqualFold(strings.TrimSpace(cred.Label), label) {
				return cred, strings.TrimSpace(cred.Label), nil
			}
		}
	}

	top, group := topPriority(usable)
	fallbackKey := "p" + strconv.Itoa(top)

	idx := 0
	if strings.EqualFold(strings.TrimSpace(cfg.SelectionPolicy), policyRoundRobin) && next != nil {
		idx = next(strconv.Itoa(top), len(group))
	}
	cred := group[idx]
	return cred, credentialKey(cred, fallbackKey), nil
}

// usableCredentials drops entries without a key and labelled entries that
// are switched off. Unlabelled entries count as enabled.
func usableCredentials(creds []CredentialConfig) []CredentialConfig {
	out := make([]CredentialConfig, 0, len(creds))
	for _, cred := range creds {
		if strings.TrimSpace(cred.APIKey) == "" {
			continue
		}
		if !cred.Enabled && strings.TrimSpace(cred.Label) != "" {
			continue
		}
		out = append(out, cred)
	}
	return out
}

func topPriority(creds []CredentialConfig) (int, []CredentialConfig) {
	top := creds[0].Priority
	for _, cred := range creds[1:] {
		if cred.Priority > top {
			top = cred.Priority
		}
	}
	group := make([]CredentialConfig, 0, len(creds))
	for _, cred := range creds {
		if cred.Priority == top {
			group = append(group, cred)
		}
	}
	return top, group
}

func credentialKey(cred CredentialConfig, fallback string) string {
	if label := strings.TrimSpace(cred.Label); label != "" {
		return label
	}
	return fallback
}
