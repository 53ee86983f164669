package goAccounts

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goAccounts/graph"
	"github.com/MrEthical07/goAccounts/jwt"
	"github.com/MrEthical07/goAccounts/session"
	"go.uber.org/zap"
)

// ResolveSession determines the identity of r. The token is taken from the
// Authorization bearer header, then from the configured cookie. Requests
// without a usable token resolve to Anonymous with a nil error; the only
// error returned is ErrStorageUnavailable (wrapped), which must fail the
// request.
func (e *Engine) ResolveSession(ctx context.Context, r *http.Request) (*Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.Resolve(ctx, e.tokenFromRequest(r))
}

// Resolve is ResolveSession for an already extracted token.
func (e *Engine) Resolve(ctx context.Context, token string) (*Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricResolveLatency, time.Since(start)) }()
	}

	if token == "" {
		e.metricInc(MetricTokenMissing)
		return e.anonymous(), nil
	}

	claims, err := e.tokens.Verify(token)
	if err != nil {
		e.tokenRejected(ctx, err)
		return e.anonymous(), nil
	}

	if e.config.ValidationMode == ModeStrict {
		rec, err := e.sessions.Get(ctx, claims.SessionID)
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			e.metricInc(MetricSessionRevoked)
			e.log.Debug("session not registered", zap.String("reason", "revoked"))
			e.emit(ctx, Event{Kind: EventTokenRejected, UserID: claims.UserID(), SessionID: claims.SessionID, Reason: "revoked"})
			return e.anonymous(), nil
		case err != nil:
			e.metricInc(MetricStorageUnavailable)
			e.log.Warn("session registry lookup failed", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		case rec.UserID != claims.UserID():
			e.metricInc(MetricSessionRevoked)
			e.log.Warn("session record belongs to another user", zap.String("session_id", claims.SessionID))
			return e.anonymous(), nil
		}
	}

	user, err := e.users.FindUserByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricUserNotFound)
			e.log.Debug("token subject has no user", zap.String("reason", "user_not_found"))
			return e.anonymous(), nil
		}
		e.metricInc(MetricStorageUnavailable)
		e.log.Warn("user store lookup failed", zap.String("op", "resolve_session"), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if user == nil {
		e.metricInc(MetricUserNotFound)
		return e.anonymous(), nil
	}

	s := newAuthenticatedSession(user, claims.SessionID, token, claims.ExpiresAt.Time)
	e.metricInc(MetricSessionAuthenticated)
	e.emit(ctx, Event{Kind: EventSessionResolved, UserID: user.ID, SessionID: claims.SessionID})
	return s, nil
}

func (e *Engine) anonymous() *Session {
	e.metricInc(MetricSessionAnonymous)
	return Anonymous()
}

func (e *Engine) tokenRejected(ctx context.Context, err error) {
	reason := "malformed"
	switch {
	case errors.Is(err, jwt.ErrExpired):
		reason = "expired"
		e.metricInc(MetricTokenExpired)
	case errors.Is(err, jwt.ErrInvalidSignature):
		reason = "invalid_signature"
		e.metricInc(MetricTokenInvalidSignature)
	default:
		e.metricInc(MetricTokenMalformed)
	}
	e.log.Debug("token rejected", zap.String("reason", reason))
	e.emit(ctx, Event{Kind: EventTokenRejected, Reason: reason})
}

func (e *Engine) tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	if c, err := r.Cookie(e.config.Session.CookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// ContextFactory returns the per-request context builder for the GraphQL
// handler. It resolves the session exactly once and attaches it, with the
// client address and user agent, to the request context.
func (e *Engine) ContextFactory() graph.ContextFunc {
	return func(r *http.Request) (context.Context, error) {
		ctx := RequestContext(r)
		s, err := e.ResolveSession(ctx, r)
		if err != nil {
			return nil, err
		}
		return WithSession(ctx, s), nil
	}
}

// RequestContext returns r's context carrying the client IP and user agent.
func RequestContext(r *http.Request) context.Context {
	ctx := r.Context()
	ctx = WithClientIP(ctx, remoteIP(r.RemoteAddr))
	ctx = WithUserAgent(ctx, r.UserAgent())
	return ctx
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
