package goAccounts

import internalmetrics "github.com/MrEthical07/goAccounts/internal/metrics"

// MetricID identifies one engine counter.
type MetricID = internalmetrics.ID

// MetricsSnapshot is a point-in-time copy of the engine counters.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricSessionAuthenticated  = internalmetrics.SessionAuthenticated
	MetricSessionAnonymous      = internalmetrics.SessionAnonymous
	MetricTokenMissing          = internalmetrics.TokenMissing
	MetricTokenMalformed        = internalmetrics.TokenMalformed
	MetricTokenInvalidSignature = internalmetrics.TokenInvalidSignature
	MetricTokenExpired          = internalmetrics.TokenExpired
	MetricSessionRevoked        = internalmetrics.SessionRevoked
	MetricUserNotFound          = internalmetrics.UserNotFound
	MetricStorageUnavailable    = internalmetrics.StorageUnavailable
	MetricGateAllowed           = internalmetrics.GateAllowed
	MetricGateUnauthorized      = internalmetrics.GateUnauthorized
	MetricGateForbidden         = internalmetrics.GateForbidden
	MetricLoginSuccess          = internalmetrics.LoginSuccess
	MetricLoginFailure          = internalmetrics.LoginFailure
	MetricLogout                = internalmetrics.Logout
	MetricUserCreated           = internalmetrics.UserCreated
	// MetricResolveLatency is the session resolution latency histogram. It is
	// reported in MetricsSnapshot.Histograms only.
	MetricResolveLatency = internalmetrics.ResolveLatency
)
