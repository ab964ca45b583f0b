package metrics

import "time"

const (
	AuditRunsTotal      = "audit_runs_total"
	AuditStageDuration  = "audit_stage_duration_ms"
	AuditStageDegraded  = "audit_stage_degraded_total"
	AuditPlatformsTotal = "audit_platforms_total"
)

// RecordAuditOutcome counts a finished run by terminal status.
func RecordAuditOutcome(status string) {
	count(AuditRunsTotal, map[string]string{"status": status})
}

// RecordStageDuration records how long one pipeline stage took.
func RecordStageDuration(stage string, d time.Duration) {
	observe(AuditStageDuration, d, map[string]string{"stage": stage})
}

// RecordStageDegraded counts a stage that fell back or was skipped.
func RecordStageDegraded(stage string) {
	count(AuditStageDegraded, map[string]string{"stage": stage})
}

// RecordPlatform counts detected storefront platforms.
func RecordPlatform(platform string) {
	count(AuditPlatformsTotal, map[string]string{"platform": platform})
}
