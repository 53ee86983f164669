package internaldefs

import (
	goAccounts "github.com/MrEthical07/goAccounts"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goAccounts.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   goAccounts.MetricID
	Name string
	Help string
}

// EventsDroppedName is the counter of events lost to a full async buffer.
const (
	EventsDroppedName = "goaccounts_events_dropped_total"
	EventsDroppedHelp = "Events dropped because the async dispatch buffer was full."
)

var CounterDefs = []CounterDef{
	{ID: goAccounts.MetricSessionAuthenticated, Name: "goaccounts_session_authenticated_total", Help: "Requests resolved to an authenticated session."},
	{ID: goAccounts.MetricSessionAnonymous, Name: "goaccounts_session_anonymous_total", Help: "Requests resolved to an anonymous session."},
	{ID: goAccounts.MetricTokenMissing, Name: "goaccounts_token_missing_total", Help: "Requests without a bearer token or session cookie."},
	{ID: goAccounts.MetricTokenMalformed, Name: "goaccounts_token_malformed_total", Help: "Tokens that could not be decoded."},
	{ID: goAccounts.MetricTokenInvalidSignature, Name: "goaccounts_token_invalid_signature_total", Help: "Tokens with a signature that did not verify."},
	{ID: goAccounts.MetricTokenExpired, Name: "goaccounts_token_expired_total", Help: "Tokens presented after expiry."},
	{ID: goAccounts.MetricSessionRevoked, Name: "goaccounts_session_revoked_total", Help: "Valid tokens whose session was no longer in the registry."},
	{ID: goAccounts.MetricUserNotFound, Name: "goaccounts_user_not_found_total", Help: "Valid tokens naming a user that no longer exists."},
	{ID: goAccounts.MetricStorageUnavailable, Name: "goaccounts_storage_unavailable_total", Help: "Operations failed by a user store or registry outage."},
	{ID: goAccounts.MetricGateAllowed, Name: "goaccounts_gate_allowed_total", Help: "Protected resolvers that ran."},
	{ID: goAccounts.MetricGateUnauthorized, Name: "goaccounts_gate_unauthorized_total", Help: "Protected resolvers rejected for an anonymous session."},
	{ID: goAccounts.MetricGateForbidden, Name: "goaccounts_gate_forbidden_total", Help: "Protected resolvers rejected for missing admin rights."},
	{ID: goAccounts.MetricLoginSuccess, Name: "goaccounts_login_success_total", Help: "Successful logins."},
	{ID: goAccounts.MetricLoginFailure, Name: "goaccounts_login_failure_total", Help: "Failed logins."},
	{ID: goAccounts.MetricLogout, Name: "goaccounts_logout_total", Help: "Ended sessions."},
	{ID: goAccounts.MetricUserCreated, Name: "goaccounts_user_created_total", Help: "Created users."},
}

var HistogramDefs = []HistogramDef{
	{ID: goAccounts.MetricResolveLatency, Name: "goaccounts_resolve_latency_seconds", Help: "Session resolution latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the latency buckets.
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

// HistogramUpperBounds mirrors HistogramBounds without the +Inf bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// Series suffixes for exporters that split a histogram into instruments.
const (
	BucketSuffix = "_bucket"
	CountSuffix  = "_count"
)

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
