package goAccounts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goAccounts/session"
)

func TestAuthenticateIssuesResolvableToken(t *testing.T) {
	env := newTestEnv(t, engineOptions{})

	result := env.login(t, env.alice)
	if result.Token == "" || result.SessionID == "" {
		t.Fatalf("expected token and session id, got %+v", result)
	}
	if result.User.PasswordHash != "" {
		t.Fatal("login result leaks the password hash")
	}
	if got := result.ExpiresAt.Sub(time.Now()); got < DefaultTokenTTL-time.Minute || got > DefaultTokenTTL+time.Minute {
		t.Fatalf("unexpected expiry in %v", got)
	}

	s, err := env.engine.Resolve(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !s.Authenticated() || s.UserID() != env.alice.ID || s.SessionID() != result.SessionID {
		t.Fatalf("unexpected session user=%q sid=%q", s.UserID(), s.SessionID())
	}
	if s.User().PasswordHash != "" {
		t.Fatal("session user carries the password hash")
	}
}

func TestAuthenticateEmailIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t, engineOptions{})

	if _, err := env.engine.Authenticate(context.Background(), "  Alice@Example.COM ", testPassword); err != nil {
		t.Fatalf("expected normalized email to authenticate, got %v", err)
	}
}

func TestAuthenticateRejections(t *testing.T) {
	var (
		mu      sync.Mutex
		reasons []string
	)
	env := newTestEnv(t, engineOptions{setup: func(b *Builder) {
		b.OnEvent(EventLoginFailed, func(_ context.Context, ev Event) {
			mu.Lock()
			reasons = append(reasons, ev.Reason)
			mu.Unlock()
		})
	}})
	ctx := context.Background()

	if _, err := env.engine.Authenticate(ctx, "nobody@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, env.alice.Email, "wrong-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty input: expected ErrInvalidCredentials, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reasons) != 2 || reasons[0] != "unknown_email" || reasons[1] != "wrong_password" {
		t.Fatalf("unexpected failure events %v", reasons)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginFailure]; got != 3 {
		t.Fatalf("expected 3 login failures, got %d", got)
	}
}

func TestAuthenticateStoreFailureIsNotACredentialError(t *testing.T) {
	env := newTestEnv(t, engineOptions{})
	env.users.setErr(errors.New("dial tcp: connection refused"))

	_, err := env.engine.Authenticate(context.Background(), env.alice.Email, testPassword)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("storage failure reported as bad credentials")
	}
}

func TestResolveSessionTokenSources(t *testing.T) {
	env := newTestEnv(t, engineOptions{})
	token := env.login(t, env.alice).Token

	tests := []struct {
		name   string
		setup  func(*http.Request)
		wantID string
	}{
		{name: "no credential"},
		{
			name:   "bearer header",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
			wantID: env.alice.ID,
		},
		{
			name:   "lowercase scheme",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) },
			wantID: env.alice.ID,
		},
		{
			name:   "cookie",
			setup:  func(r *http.Request) { r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token}) },
			wantID: env.alice.ID,
		},
		{
			name: "header wins over cookie",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer garbage")
				r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})
			},
		},
		{
			name:  "basic auth is ignored",
			setup: func(r *http.Request) { r.Header.Set("Authorization", "Basic "+token) },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
			if tc.setup != nil {
				tc.setup(r)
			}
			s, err := env.engine.ResolveSession(r.Context(), r)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if s.UserID() != tc.wantID {
				t.Fatalf("expected user %q, got %q", tc.wantID, s.UserID())
			}
			if tc.wantID == "" && s.Authenticated() {
				t.Fatal("expected anonymous session")
			}
		})
	}
}

func TestResolveRejectedTokensAreAnonymous(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	env := newTestEnv(t, engineOptions{clock: clock, mutate: func(c *Config) { c.Token.TTL = time.Hour }})
	ctx := context.Background()

	token := env.login(t, env.alice).Token

	s, err := env.engine.Resolve(ctx, "garbage-without-segments")
	if err != nil || s.Authenticated() {
		t.Fatalf("malformed token: session=%v err=%v", s.Authenticated(), err)
	}

	tampered := []byte(token)
	tampered[len(tampered)-2] ^= 0x01
	if s, err = env.engine.Resolve(ctx, string(tampered)); err != nil || s.Authenticated() {
		t.Fatalf("tampered token: session=%v err=%v", s.Authenticated(), err)
	}

	clock.Advance(2 * time.Hour)
	if s, err = env.engine.Resolve(ctx, token); err != nil || s.Authenticated() {
		t.Fatalf("expired token: session=%v err=%v", s.Authenticated(), err)
	}

	counters := env.engine.MetricsSnapshot().Counters
	if counters[MetricTokenMalformed] != 1 || counters[MetricTokenExpired] != 1 {
		t.Fatalf("unexpected token counters %v", counters)
	}
	if counters[MetricTokenInvalidSignature] != 1 {
		t.Fatalf("tampered token not counted: %v", counters)
	}
	if env.users.lookups != 0 {
		t.Fatalf("rejected tokens must not reach the user store, got %d lookups", env.users.lookups)
	}
}

func TestResolveUserNotFoundIsAnonymous(t *testing.T) {
	env := newTestEnv(t, engineOptions{})
	token := env.login(t, env.alice).Token
	env.users.remove(env.alice.ID)

	s, err := env.engine.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if s.Authenticated() {
		t.Fatal("expected anonymous session for a deleted user")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricUserNotFound]; got != 1 {
		t.Fatalf("expected user-not-found counter 1, got %d", got)
	}
}

func TestResolveStoreFailureFailsRequest(t *testing.T) {
	env := newTestEnv(t, engineOptions{})
	token := env.login(t, env.alice).Token
	env.users.setErr(errors.New("pq: too many connections"))

	s, err := env.engine.Resolve(context.Background(), token)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if s != nil {
		t.Fatal("expected no session alongside a storage error")
	}
	if !ErrStorageUnavailable.Retryable() {
		t.Fatal("storage errors must be retryable")
	}
}

func TestStrictModeLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t, engineOptions{redis: true, mutate: func(c *Config) { c.ValidationMode = ModeStrict }})
	ctx := context.Background()

	result := env.login(t, env.alice)
	s, err := env.engine.Resolve(ctx, result.Token)
	if err != nil || !s.Authenticated() {
		t.Fatalf("expected live session, got session=%v err=%v", s.Authenticated(), err)
	}

	ids, err := env.engine.ActiveSessions(ctx, env.alice.ID)
	if err != nil || len(ids) != 1 || ids[0] != result.SessionID {
		t.Fatalf("unexpected active sessions %v err=%v", ids, err)
	}

	if err := env.engine.Logout(ctx, s); err != nil {
		t.Fatalf("logout: %v", err)
	}

	s, err = env.engine.Resolve(ctx, result.Token)
	if err != nil {
		t.Fatalf("resolve after logout: %v", err)
	}
	if s.Authenticated() {
		t.Fatal("expected revoked token to resolve anonymous")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricSessionRevoked]; got != 1 {
		t.Fatalf("expected revoked counter 1, got %d", got)
	}
}

func TestStrictModeRegistryFailureFailsRequest(t *testing.T) {
	env := newTestEnv(t, engineOptions{redis: true, mutate: func(c *Config) { c.ValidationMode = ModeStrict }})
	token := env.login(t, env.alice).Token

	env.redis.SetError("injected failure")

	_, err := env.engine.Resolve(context.Background(), token)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestStrictModeRejectsRecordOfAnotherUser(t *testing.T) {
	env := newTestEnv(t, engineOptions{redis: true, mutate: func(c *Config) { c.ValidationMode = ModeStrict }})
	ctx := context.Background()

	result := env.login(t, env.alice)

	store := env.engine.sessions
	if err := store.Save(ctx, &session.Record{
		SessionID: result.SessionID,
		UserID:    env.bob.ID,
		CreatedAt: time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}, time.Hour); err != nil {
		t.Fatalf("overwrite record: %v", err)
	}

	s, err := env.engine.Resolve(ctx, result.Token)
	if err != nil || s.Authenticated() {
		t.Fatalf("expected anonymous session, got session=%v err=%v", s.Authenticated(), err)
	}
}

func TestJWTOnlyLogoutKeepsTokenValid(t *testing.T) {
	env := newTestEnv(t, engineOptions{redis: true})
	ctx := context.Background()

	s := env.sessionFor(t, env.alice)
	if err := env.engine.Logout(ctx, s); err != nil {
		t.Fatalf("logout: %v", err)
	}

	again, err := env.engine.Resolve(ctx, s.Token())
	if err != nil || !again.Authenticated() {
		t.Fatalf("jwt-only tokens stay valid until expiry, got session=%v err=%v", again.Authenticated(), err)
	}
	ids, err := env.engine.ActiveSessions(ctx, env.alice.ID)
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected logout to drop the record, got %v err=%v", ids, err)
	}
}

func TestLogoutRequiresSession(t *testing.T) {
	env := newTestEnv(t, engineOptions{})

	if err := env.engine.Logout(context.Background(), Anonymous()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.engine.LogoutAll(context.Background(), env.alice.ID); !errors.Is(err, ErrSessionRegistryDisabled) {
		t.Fatalf("expected ErrSessionRegistryDisabled, got %v", err)
	}
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t, engineOptions{redis: true, mutate: func(c *Config) { c.ValidationMode = ModeStrict }})
	ctx := context.Background()

	first := env.login(t, env.alice)
	second := env.login(t, env.alice)
	bob := env.login(t, env.bob)

	n, err := env.engine.LogoutAll(ctx, env.alice.ID)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 sessions removed, got %d err=%v", n, err)
	}
	for _, token := range []string{first.Token, second.Token} {
		if s, _ := env.engine.Resolve(ctx, token); s.Authenticated() {
			t.Fatal("expected alice's tokens to be revoked")
		}
	}
	if s, _ := env.engine.Resolve(ctx, bob.Token); !s.Authenticated() {
		t.Fatal("bob's session must survive")
	}
}

func TestCreateUser(t *testing.T) {
	var created []Event
	env := newTestEnv(t, engineOptions{setup: func(b *Builder) {
		b.OnEvent(EventCreateUser, func(_ context.Context, ev Event) { created = append(created, ev) })
	}})
	ctx := context.Background()

	u, err := env.engine.CreateUser(ctx, User{Email: " Carol@Example.com ", Username: "carol"}, testPassword)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == "" || u.Email != "carol@example.com" || u.PasswordHash != "" || u.CreatedAt.IsZero() {
		t.Fatalf("unexpected created user %+v", u)
	}
	if len(created) != 1 || created[0].UserID != u.ID {
		t.Fatalf("expected one create_user event, got %+v", created)
	}

	if _, err := env.engine.Authenticate(ctx, "carol@example.com", testPassword); err != nil {
		t.Fatalf("new user cannot log in: %v", err)
	}

	if _, err := env.engine.CreateUser(ctx, User{Email: "carol@example.com"}, testPassword); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if _, err := env.engine.CreateUser(ctx, User{Email: "no-at-sign"}, testPassword); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}

func TestCreateUserReadOnlyStore(t *testing.T) {
	engine, err := New().WithConfig(testConfig()).WithUserStore(newStubUsers()).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	if _, err := engine.CreateUser(context.Background(), User{Email: "x@example.com"}, testPassword); !errors.Is(err, ErrUserStoreReadOnly) {
		t.Fatalf("expected ErrUserStoreReadOnly, got %v", err)
	}
}

func TestAsyncEventsAreDelivered(t *testing.T) {
	got := make(chan Event, 4)
	env := newTestEnv(t, engineOptions{
		mutate: func(c *Config) {
			c.Events.Async = true
			c.Events.BufferSize = 8
		},
		setup: func(b *Builder) {
			b.OnEvent(EventLogin, func(_ context.Context, ev Event) { got <- ev })
		},
	})

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	if _, err := env.engine.Authenticate(ctx, env.alice.Email, testPassword); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	select {
	case ev := <-got:
		if ev.UserID != env.alice.ID || ev.IP != "203.0.113.7" || ev.SessionID == "" || ev.Time.IsZero() {
			t.Fatalf("unexpected login event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("login event was not delivered")
	}
}

func TestPing(t *testing.T) {
	env := newTestEnv(t, engineOptions{})
	if err := env.engine.Ping(context.Background()); err != nil {
		t.Fatalf("ping without registry: %v", err)
	}

	env = newTestEnv(t, engineOptions{redis: true})
	if err := env.engine.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
