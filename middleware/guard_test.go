package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	goAccounts "github.com/MrEthical07/goAccounts"
	"github.com/MrEthical07/goAccounts/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "middleware-password"

type fixture struct {
	engine *goAccounts.Engine
	redis  *miniredis.Miniredis
	user   string
	admin  string
}

func newFixture(t *testing.T, mode goAccounts.ValidationMode) *fixture {
	t.Helper()

	users, err := memory.New()
	require.NoError(t, err)

	cfg := goAccounts.DefaultConfig()
	cfg.Token.Secret = []byte("middleware-test-secret-0123456789abc")
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.ValidationMode = mode

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	engine, err := goAccounts.New().WithConfig(cfg).WithUserStore(users).WithRedis(client).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	ctx := context.Background()
	_, err = engine.CreateUser(ctx, goAccounts.User{ID: "u1", Email: "user@example.com"}, testPassword)
	require.NoError(t, err)
	_, err = engine.CreateUser(ctx, goAccounts.User{ID: "a1", Email: "admin@example.com", IsAdmin: true}, testPassword)
	require.NoError(t, err)

	return &fixture{
		engine: engine,
		redis:  mr,
		user:   login(t, engine, "user@example.com"),
		admin:  login(t, engine, "admin@example.com"),
	}
}

func login(t *testing.T, engine *goAccounts.Engine, email string) string {
	t.Helper()
	res, err := engine.Authenticate(context.Background(), email, testPassword)
	require.NoError(t, err)
	return res.Token
}

func whoami(w http.ResponseWriter, r *http.Request) {
	s, _ := goAccounts.SessionFromContext(r.Context())
	if !s.Authenticated() {
		_, _ = w.Write([]byte("anonymous"))
		return
	}
	_, _ = w.Write([]byte(s.UserID()))
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSessionAttachesIdentity(t *testing.T) {
	f := newFixture(t, goAccounts.ModeJWTOnly)
	h := Session(f.engine)(http.HandlerFunc(whoami))

	rec := serve(h, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	rec = serve(h, "not-a-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	rec = serve(h, f.user)
	assert.Equal(t, "u1", rec.Body.String())
}

func TestSessionReadsCookie(t *testing.T) {
	f := newFixture(t, goAccounts.ModeJWTOnly)
	h := Session(f.engine)(http.HandlerFunc(whoami))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: goAccounts.DefaultCookieName, Value: f.admin})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "a1", rec.Body.String())
}

func TestGuard(t *testing.T) {
	f := newFixture(t, goAccounts.ModeJWTOnly)
	h := Guard(f.engine)(http.HandlerFunc(whoami))

	rec := serve(h, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = serve(h, f.user)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	f := newFixture(t, goAccounts.ModeJWTOnly)
	h := RequireAdmin(f.engine)(http.HandlerFunc(whoami))

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, f.user).Code)

	rec := serve(h, f.admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a1", rec.Body.String())
}

func TestGuardReusesResolvedSession(t *testing.T) {
	f := newFixture(t, goAccounts.ModeStrict)
	h := Session(f.engine)(Guard(f.engine)(http.HandlerFunc(whoami)))

	rec := serve(h, f.user)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(1), f.engine.MetricsSnapshot().Counters[goAccounts.MetricSessionAuthenticated])
}

func TestStrictModeRegistryOutage(t *testing.T) {
	f := newFixture(t, goAccounts.ModeStrict)
	h := Guard(f.engine)(http.HandlerFunc(whoami))

	f.redis.SetError("injected failure")
	defer f.redis.SetError("")

	assert.Equal(t, http.StatusServiceUnavailable, serve(h, f.user).Code)
}

func TestSessionWithoutEngine(t *testing.T) {
	h := Session(nil)(http.HandlerFunc(whoami))
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, "").Code)
}
