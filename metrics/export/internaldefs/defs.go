package internaldefs

import (
	"github.com/trackwise/edgeauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   edgeauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   edgeauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: edgeauth.MetricLoginSuccess, Name: "edgeauth_login_success_total", Help: "Successful logins."},
	{ID: edgeauth.MetricLoginFailure, Name: "edgeauth_login_failure_total", Help: "Failed logins."},
	{ID: edgeauth.MetricLoginRateLimited, Name: "edgeauth_login_rate_limited_total", Help: "Logins rejected by the throttle."},
	{ID: edgeauth.MetricSessionCreated, Name: "edgeauth_session_created_total", Help: "Sessions created."},
	{ID: edgeauth.MetricSessionSuperseded, Name: "edgeauth_session_superseded_total", Help: "Sessions revoked by a newer login of the same principal."},
	{ID: edgeauth.MetricLogout, Name: "edgeauth_logout_total", Help: "Sessions revoked by logout."},
	{ID: edgeauth.MetricRevokeAll, Name: "edgeauth_revoke_all_total", Help: "Revoke-all operations."},
	{ID: edgeauth.MetricValidateSuccess, Name: "edgeauth_validate_success_total", Help: "Successful session validations."},
	{ID: edgeauth.MetricValidateNotFound, Name: "edgeauth_validate_not_found_total", Help: "Validations for unknown sessions."},
	{ID: edgeauth.MetricValidateRevoked, Name: "edgeauth_validate_revoked_total", Help: "Validations of revoked sessions."},
	{ID: edgeauth.MetricValidateExpired, Name: "edgeauth_validate_expired_total", Help: "Validations of expired sessions."},
	{ID: edgeauth.MetricRoleVersionMismatch, Name: "edgeauth_role_version_mismatch_total", Help: "Sessions rejected after a role change."},
	{ID: edgeauth.MetricRoleUpdated, Name: "edgeauth_role_updated_total", Help: "Role updates."},
	{ID: edgeauth.MetricRegistrationSuccess, Name: "edgeauth_registration_success_total", Help: "Successful registrations."},
	{ID: edgeauth.MetricRegistrationDuplicate, Name: "edgeauth_registration_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: edgeauth.MetricSessionsPurged, Name: "edgeauth_sessions_purged_total", Help: "Expired sessions deleted by the janitor."},
}

var HistogramDefs = []HistogramDef{
	{ID: edgeauth.MetricValidateLatency, Name: "edgeauth_validate_latency_seconds", Help: "Session validation latency."},
}

// HistogramBounds are the Prometheus "le" labels, matching the engine's
// bucket bounds.
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

// HistogramBoundSuffix are attribute-safe forms of HistogramBounds.
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

// NormalizeBuckets copies raw into a fixed-size array, zero-padding.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
