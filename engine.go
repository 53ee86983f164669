package goAccounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goAccounts/internal/events"
	internalmetrics "github.com/MrEthical07/goAccounts/internal/metrics"
	"github.com/MrEthical07/goAccounts/jwt"
	"github.com/MrEthical07/goAccounts/password"
	"github.com/MrEthical07/goAccounts/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine resolves request identities and issues tokens. It is safe for
// concurrent use; all of its state is fixed by Builder.Build.
type Engine struct {
	config    Config
	users     UserStore
	sessions  *session.Store
	tokens    *jwt.Manager
	passwords *password.Hasher
	metrics   *internalmetrics.Metrics
	events    *events.Bus
	log       *zap.Logger
	clock     func() time.Time
}

// Close stops the event dispatcher after draining queued events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.events.Close()
}

// EventsDropped reports events discarded because the async buffer was full.
func (e *Engine) EventsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.events.Dropped()
}

// MetricsSnapshot returns the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// TokenTTL reports the lifetime of issued tokens.
func (e *Engine) TokenTTL() time.Duration {
	return e.tokens.TTL()
}

// ValidationMode reports the configured validation mode.
func (e *Engine) ValidationMode() ValidationMode {
	return e.config.ValidationMode
}

// Ping checks the session registry. It returns nil when no registry is
// configured.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.sessions == nil {
		return nil
	}
	if _, err := e.sessions.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Authenticate checks email and password and issues a token for the user.
// Unknown emails and wrong passwords both return ErrInvalidCredentials and
// cost the same argon2 work.
func (e *Engine) Authenticate(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if e == nil || e.passwords == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || plaintext == "" {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	user, err := e.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.passwords.VerifyDummy(plaintext)
			e.loginFailed(ctx, "", email, "unknown_email")
			return nil, ErrInvalidCredentials
		}
		e.metricInc(MetricStorageUnavailable)
		e.log.Warn("user store lookup failed", zap.String("op", "authenticate"), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if user == nil {
		e.passwords.VerifyDummy(plaintext)
		e.loginFailed(ctx, "", email, "unknown_email")
		return nil, ErrInvalidCredentials
	}

	ok, err := e.passwords.Verify(plaintext, user.PasswordHash)
	if errors.Is(err, password.ErrPasswordTooLong) {
		ok, err = false, nil
	}
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.log.Error("stored password hash rejected", zap.String("user_id", user.ID), zap.Error(err))
		return nil, fmt.Errorf("verify password for %s: %w", user.ID, err)
	}
	if !ok {
		e.loginFailed(ctx, user.ID, email, "wrong_password")
		return nil, ErrInvalidCredentials
	}

	result, err := e.IssueToken(ctx, user)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emit(ctx, Event{Kind: EventLogin, UserID: user.ID, Email: user.Email, SessionID: result.SessionID})
	return result, nil
}

func (e *Engine) loginFailed(ctx context.Context, userID, email, reason string) {
	e.metricInc(MetricLoginFailure)
	e.log.Debug("login rejected", zap.String("reason", reason))
	e.emit(ctx, Event{Kind: EventLoginFailed, UserID: userID, Email: email, Reason: reason})
}

// IssueToken creates a session for user without checking credentials. With a
// session registry configured the session is recorded; in ModeStrict a
// registry failure fails the call.
func (e *Engine) IssueToken(ctx context.Context, user *User) (*LoginResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if user == nil || user.ID == "" {
		return nil, ErrInvalidUser
	}

	sessionID := uuid.NewString()
	token, claims, err := e.tokens.Issue(user.ID, sessionID)
	if err != nil {
		return nil, err
	}
	expiresAt := claims.ExpiresAt.Time

	if e.sessions != nil {
		now := e.now()
		rec := &session.Record{
			SessionID: sessionID,
			UserID:    user.ID,
			IP:        clientIPFromContext(ctx),
			UserAgent: userAgentFromContext(ctx),
			CreatedAt: now.Unix(),
			ExpiresAt: expiresAt.Unix(),
		}
		if err := e.sessions.Save(ctx, rec, expiresAt.Sub(now)); err != nil {
			if e.config.ValidationMode == ModeStrict {
				e.metricInc(MetricStorageUnavailable)
				e.log.Warn("session registry write failed", zap.Error(err))
				return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
			}
			e.log.Warn("session record not saved; logout will not revoke this token", zap.Error(err))
		}
	}

	u := *user
	u.PasswordHash = ""
	return &LoginResult{Token: token, ExpiresAt: expiresAt, SessionID: sessionID, User: &u}, nil
}

// Logout ends s. In ModeStrict the token stops resolving immediately; in
// ModeJWTOnly the record is removed but the token stays valid until it
// expires.
func (e *Engine) Logout(ctx context.Context, s *Session) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if !s.Authenticated() {
		return ErrUnauthorized
	}

	if e.sessions != nil {
		if err := e.sessions.Delete(ctx, s.SessionID()); err != nil {
			e.metricInc(MetricStorageUnavailable)
			e.log.Warn("session registry delete failed", zap.Error(err))
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}

	e.metricInc(MetricLogout)
	e.emit(ctx, Event{Kind: EventLogout, UserID: s.UserID(), SessionID: s.SessionID()})
	return nil
}

// LogoutAll removes every recorded session of userID and returns how many
// were removed.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if e.sessions == nil {
		return 0, ErrSessionRegistryDisabled
	}
	n, err := e.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		e.metricInc(MetricStorageUnavailable)
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	for i := 0; i < n; i++ {
		e.metricInc(MetricLogout)
	}
	return n, nil
}

// ActiveSessions lists the recorded session ids of userID.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.sessions == nil {
		return nil, ErrSessionRegistryDisabled
	}
	ids, err := e.sessions.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return ids, nil
}

// CreateUser hashes plaintext and stores user through the configured
// UserWriter. An empty ID is replaced with a random uuid. The returned copy
// has no password hash.
func (e *Engine) CreateUser(ctx context.Context, user User, plaintext string) (*User, error) {
	if e == nil || e.passwords == nil {
		return nil, ErrEngineNotReady
	}
	writer, ok := e.users.(UserWriter)
	if !ok {
		return nil, ErrUserStoreReadOnly
	}

	user.Email = normalizeEmail(user.Email)
	user.Username = strings.TrimSpace(user.Username)
	if user.Email == "" || !strings.Contains(user.Email, "@") {
		return nil, ErrInvalidUser
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = e.now().UTC()
	}

	hash, err := e.passwords.Hash(plaintext)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	if err := writer.CreateUser(ctx, &user); err != nil {
		return nil, err
	}

	e.metricInc(MetricUserCreated)
	e.emit(ctx, Event{Kind: EventCreateUser, UserID: user.ID, Email: user.Email})

	user.PasswordHash = ""
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
