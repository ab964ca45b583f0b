package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
)

// RunStatus is the lifecycle state of an audit run.
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// ParseRunStatus normalizes a status string.
func ParseRunStatus(value string) (RunStatus, error) {
	status := RunStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return status, nil
	default:
		return "", fmt.Errorf("unknown run status %q", value)
	}
}

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether s may move to next.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// AuditRun is one scheduled or executed audit of a target URL.
type AuditRun struct {
	ID              string        `json:"id"`
	TargetURL       string        `json:"target_url"`
	Domain          string        `json:"domain,omitempty"`
	Status          RunStatus     `json:"status"`
	Progress        int           `json:"progress"`
	ProgressMessage string        `json:"progress_message,omitempty"`
	Error           string        `json:"error,omitempty"`
	TotalScore      *int          `json:"total_score,omitempty"`
	Platform        Platform      `json:"platform,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	Elapsed         time.Duration `json:"elapsed_ns,omitempty"`
}

// NewAuditRun validates target and returns a pending run.
func NewAuditRun(target string, now time.Time) (AuditRun, error) {
	normalized, err := NormalizeTargetURL(target)
	if err != nil {
		return AuditRun{}, err
	}
	return AuditRun{
		ID:        uuid.NewString(),
		TargetURL: normalized,
		Domain:    RegistrableDomain(normalized),
		Status:    StatusPending,
		CreatedAt: now.UTC(),
	}, nil
}

// NormalizeTargetURL accepts bare hosts and returns an absolute http(s) URL.
func NormalizeTargetURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", NewValidationError("target url is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", NewValidationError(fmt.Sprintf("invalid target url: %v", err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", NewValidationError(fmt.Sprintf("unsupported url scheme %q", parsed.Scheme))
	}
	if parsed.Hostname() == "" {
		return "", NewValidationError("target url has no host")
	}
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	return parsed.String(), nil
}

// RegistrableDomain returns the eTLD+1 of a URL, or its host when that fails.
func RegistrableDomain(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
