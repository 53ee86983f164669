package goAccounts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goAccounts/graph"
	"github.com/MrEthical07/goAccounts/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-horse-battery"

type stubUsers struct {
	mu      sync.Mutex
	byID    map[string]*User
	err     error
	lookups int
}

func newStubUsers(users ...*User) *stubUsers {
	s := &stubUsers{byID: make(map[string]*User)}
	for _, u := range users {
		s.byID[u.ID] = u
	}
	return s
}

func (s *stubUsers) FindUserByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (s *stubUsers) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, u := range s.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *stubUsers) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *stubUsers) remove(id string) {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
}

type writableUsers struct {
	*stubUsers
}

func (w writableUsers) CreateUser(_ context.Context, u *User) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, existing := range w.byID {
		if existing.Email == u.Email {
			return ErrUserExists
		}
	}
	c := *u
	w.byID[u.ID] = &c
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("test-secret-0123456789abcdef0123")
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestHasher(t *testing.T, cfg Config) *password.Hasher {
	t.Helper()
	h, err := password.New(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("password hasher: %v", err)
	}
	return h
}

type engineOptions struct {
	mutate func(*Config)
	redis  bool
	clock  *testClock
	setup  func(*Builder)
}

type testEnv struct {
	engine *Engine
	users  *stubUsers
	redis  *miniredis.Miniredis
	alice  *User
	bob    *User
	admin  *User
}

func newTestEnv(t *testing.T, opts engineOptions) *testEnv {
	t.Helper()

	cfg := testConfig()
	if opts.mutate != nil {
		opts.mutate(&cfg)
	}

	hasher := newTestHasher(t, cfg)
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	env := &testEnv{
		alice: &User{ID: "u-alice", Email: "alice@example.com", Username: "alice", PasswordHash: hash},
		bob:   &User{ID: "u-bob", Email: "bob@example.com", Username: "bob", PasswordHash: hash},
		admin: &User{ID: "u-admin", Email: "admin@example.com", Username: "root", IsAdmin: true, PasswordHash: hash},
	}
	env.users = newStubUsers(env.alice, env.bob, env.admin)

	b := New().WithConfig(cfg).WithUserStore(writableUsers{env.users})
	if opts.redis {
		env.redis = miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: env.redis.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		b.WithRedis(client)
	}
	if opts.clock != nil {
		b.WithClock(opts.clock.Now)
	}
	if opts.setup != nil {
		opts.setup(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) login(t *testing.T, u *User) *LoginResult {
	t.Helper()
	result, err := env.engine.Authenticate(context.Background(), u.Email, testPassword)
	if err != nil {
		t.Fatalf("authenticate %s: %v", u.Email, err)
	}
	return result
}

func (env *testEnv) sessionFor(t *testing.T, u *User) *Session {
	t.Helper()
	s, err := env.engine.Resolve(context.Background(), env.login(t, u).Token)
	if err != nil {
		t.Fatalf("resolve %s: %v", u.Email, err)
	}
	if !s.Authenticated() {
		t.Fatalf("expected %s to resolve to an authenticated session", u.Email)
	}
	return s
}

// demoSchema composes the accounts module with a small application module
// whose resolvers count their calls.
type demoSchema struct {
	schema *graph.Schema
	mu     sync.Mutex
	calls  map[string]int
}

func (d *demoSchema) count(field string, value interface{}) graph.FieldResolver {
	return func(context.Context, interface{}, map[string]interface{}) (interface{}, error) {
		d.mu.Lock()
		d.calls[field]++
		d.mu.Unlock()
		return value, nil
	}
}

func (d *demoSchema) callCount(field string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[field]
}

func newDemoSchema(t *testing.T, e *Engine) *demoSchema {
	t.Helper()

	d := &demoSchema{calls: make(map[string]int)}
	app := graph.Module{
		Name: "app",
		TypeDefs: `
			type PrivateType @auth { field: String }
			extend type Query {
				publicField: String
				privateField: String @auth
				privateType: PrivateType
				adminField: String @auth(requires: ADMIN)
			}
			extend type User { firstName: String }
		`,
		Resolvers: graph.Resolvers{
			"Query": {
				"publicField":  d.count("publicField", "public"),
				"privateField": d.count("privateField", "private"),
				"privateType":  d.count("privateType", map[string]interface{}{}),
				"adminField":   d.count("adminField", "admin field"),
			},
			"PrivateType": {
				"field": d.count("PrivateType.field", "private"),
			},
			"User": {
				"firstName": d.count("User.firstName", "first"),
			},
		},
	}

	schema, err := graph.Compose(e.GraphQL(), app)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	d.schema = schema
	return d
}
