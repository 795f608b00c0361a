package internaldefs

import (
	"github.com/MrEthical07/sessionauth"
)

// Def names one engine metric for every exporter.
type Def struct {
	ID   sessionauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is exported alongside the engine counters; it is read
// from Engine.AuditDropped rather than the snapshot.
const (
	AuditDroppedName = "sessionauth_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

var CounterDefs = []Def{
	{ID: sessionauth.MetricLoginSuccess, Name: "sessionauth_login_success_total", Help: "Successful logins."},
	{ID: sessionauth.MetricLoginFailure, Name: "sessionauth_login_failure_total", Help: "Logins rejected after the lockout check."},
	{ID: sessionauth.MetricLoginLockedOut, Name: "sessionauth_login_locked_out_total", Help: "Logins rejected because the email or IP was locked out."},
	{ID: sessionauth.MetricLockoutTriggered, Name: "sessionauth_lockout_triggered_total", Help: "Failures that pushed a counter to its lockout threshold."},
	{ID: sessionauth.MetricRefreshSuccess, Name: "sessionauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: sessionauth.MetricRefreshFailure, Name: "sessionauth_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: sessionauth.MetricRefreshRevoked, Name: "sessionauth_refresh_revoked_total", Help: "Refresh tokens presented after their entry was rotated or removed."},
	{ID: sessionauth.MetricLogout, Name: "sessionauth_logout_total", Help: "Single-device logouts."},
	{ID: sessionauth.MetricLogoutAll, Name: "sessionauth_logout_all_total", Help: "All-device logouts."},
	{ID: sessionauth.MetricTokenBlacklisted, Name: "sessionauth_token_blacklisted_total", Help: "Access tokens added to the blacklist."},
	{ID: sessionauth.MetricAuthenticateSuccess, Name: "sessionauth_authenticate_success_total", Help: "Access tokens accepted."},
	{ID: sessionauth.MetricAuthenticateFailure, Name: "sessionauth_authenticate_failure_total", Help: "Access tokens rejected."},
	{ID: sessionauth.MetricAuthenticateRevoked, Name: "sessionauth_authenticate_revoked_total", Help: "Access tokens rejected because they were blacklisted."},
	{ID: sessionauth.MetricStoreUnavailable, Name: "sessionauth_store_unavailable_total", Help: "Operations that could not reach the session store."},
	{ID: sessionauth.MetricAuthenticateFailOpen, Name: "sessionauth_authenticate_fail_open_total", Help: "Access tokens admitted without a blacklist check during a store outage."},
}

var HistogramDefs = []Def{
	{ID: sessionauth.MetricLoginLatency, Name: "sessionauth_login_latency_seconds", Help: "Login latency."},
	{ID: sessionauth.MetricAuthenticateLatency, Name: "sessionauth_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// HistogramBounds are the upper bounds of the engine's eight fixed
// buckets, in seconds.
var HistogramBounds = [8]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 0}

// HistogramBoundSuffix is used where a bound must be part of an
// instrument name.
var HistogramBoundSuffix = [8]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// CumulativeBuckets converts per-bucket counts into the running totals
// Prometheus and OTel expect. Missing buckets count as zero.
func CumulativeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(out); i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
