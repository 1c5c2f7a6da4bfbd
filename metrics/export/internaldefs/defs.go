package internaldefs

import (
	twofa "github.com/raed-saidi/twofa"
)

// CounterDef defines a public type used by twofa APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   twofa.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by twofa APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   twofa.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the two-factor engine.
var CounterDefs = []CounterDef{
	{ID: twofa.MetricAuthSuccess, Name: "twofa_auth_success_total", Help: "Successful authentication attempts."},
	{ID: twofa.MetricAuthFailure, Name: "twofa_auth_failure_total", Help: "Failed authentication attempts."},
	{ID: twofa.MetricAuthRateLimited, Name: "twofa_auth_rate_limited_total", Help: "Rate-limited authentication attempts."},
	{ID: twofa.MetricTOTPAccepted, Name: "twofa_totp_accepted_total", Help: "Accepted TOTP verifications."},
	{ID: twofa.MetricTOTPRejected, Name: "twofa_totp_rejected_total", Help: "Rejected TOTP verifications."},
	{ID: twofa.MetricBackupCodeUsed, Name: "twofa_backup_code_used_total", Help: "Successful backup-code redemptions."},
	{ID: twofa.MetricBackupCodeFailed, Name: "twofa_backup_code_failed_total", Help: "Failed backup-code redemptions."},
	{ID: twofa.MetricBackupCodesIssued, Name: "twofa_backup_codes_issued_total", Help: "Backup-code batch issuances."},
	{ID: twofa.MetricEnrollmentStarted, Name: "twofa_enrollment_started_total", Help: "Two-factor enrollments started."},
	{ID: twofa.MetricEnrollmentConfirmed, Name: "twofa_enrollment_confirmed_total", Help: "Two-factor enrollments confirmed."},
	{ID: twofa.MetricEnrollmentAbandoned, Name: "twofa_enrollment_abandoned_total", Help: "Two-factor enrollments abandoned."},
	{ID: twofa.MetricTwoFactorDisabled, Name: "twofa_disabled_total", Help: "Two-factor disable operations."},
	{ID: twofa.MetricSessionCreated, Name: "twofa_session_created_total", Help: "Created sessions."},
	{ID: twofa.MetricSessionTouched, Name: "twofa_session_touched_total", Help: "Session activity refreshes."},
	{ID: twofa.MetricSessionRevoked, Name: "twofa_session_revoked_total", Help: "Single-session revocations."},
	{ID: twofa.MetricSessionsRevokedAll, Name: "twofa_sessions_revoked_all_total", Help: "Bulk session revocations."},
	{ID: twofa.MetricRateLimitHit, Name: "twofa_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

// HistogramDefs is an exported constant or variable used by the two-factor engine.
var HistogramDefs = []HistogramDef{
	{ID: twofa.MetricAuthenticateLatency, Name: "twofa_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the two-factor engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the two-factor engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
