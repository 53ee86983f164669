package goAccounts

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goAccounts/jwt"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
		valid   bool
	}{
		{
			name:  "test config valid",
			valid: true,
		},
		{
			name:    "missing secret",
			mutate:  func(c *Config) { c.Token.Secret = nil },
			wantErr: ErrMissingTokenSecret,
		},
		{
			name:    "blank secret",
			mutate:  func(c *Config) { c.Token.Secret = []byte("   ") },
			wantErr: ErrMissingTokenSecret,
		},
		{
			name:    "published secret",
			mutate:  func(c *Config) { c.Token.Secret = []byte(PublishedSecret) },
			wantErr: ErrInsecureTokenSecret,
		},
		{
			name: "short secret outside production",
			mutate: func(c *Config) {
				c.Token.Secret = []byte("short-but-allowed")
			},
			valid: true,
		},
		{
			name: "short secret in production",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.Password = DefaultConfig().Password
				c.Token.Secret = []byte("short-secret")
			},
			wantErr: ErrInsecureTokenSecret,
		},
		{
			name: "long secret in production",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.Password = DefaultConfig().Password
				c.Token.Secret = []byte(strings.Repeat("k", 32))
			},
			valid: true,
		},
		{
			name:   "zero ttl",
			mutate: func(c *Config) { c.Token.TTL = 0 },
		},
		{
			name:   "leeway too large",
			mutate: func(c *Config) { c.Token.Leeway = 3 * time.Minute },
		},
		{
			name:   "unknown signing method",
			mutate: func(c *Config) { c.Token.SigningMethod = "rs256" },
		},
		{
			name:   "ed25519 without keys",
			mutate: func(c *Config) { c.Token.SigningMethod = jwt.MethodEd25519 },
		},
		{
			name:   "empty cookie name",
			mutate: func(c *Config) { c.Session.CookieName = "" },
		},
		{
			name:   "redis prefix with spaces",
			mutate: func(c *Config) { c.Session.RedisPrefix = "a b" },
		},
		{
			name: "async events need a buffer",
			mutate: func(c *Config) {
				c.Events.Async = true
				c.Events.BufferSize = 0
			},
		},
		{
			name: "latency histograms need metrics",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
		},
		{
			name:   "unknown validation mode",
			mutate: func(c *Config) { c.ValidationMode = 7 },
		},
		{
			name: "production rejects cheap argon2",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.Token.Secret = []byte(strings.Repeat("k", 32))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			err := cfg.Validate()
			switch {
			case tc.valid && err != nil:
				t.Fatalf("expected valid config, got %v", err)
			case !tc.valid && err == nil:
				t.Fatal("expected validation error")
			case tc.wantErr != nil && !errors.Is(err, tc.wantErr):
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigHasNoUsableSecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrMissingTokenSecret) {
		t.Fatalf("expected ErrMissingTokenSecret, got %v", err)
	}
	if cfg.Token.TTL != 7*24*time.Hour {
		t.Fatalf("unexpected default ttl %v", cfg.Token.TTL)
	}
	if cfg.Session.CookieName != DefaultCookieName {
		t.Fatalf("unexpected cookie name %q", cfg.Session.CookieName)
	}
}

func TestDefaultSiteURL(t *testing.T) {
	if got := DefaultSiteURL(true); got != "https://myapp.com" {
		t.Fatalf("production site url = %q", got)
	}
	if got := DefaultSiteURL(false); got != "http://localhost:3000" {
		t.Fatalf("development site url = %q", got)
	}
}

func TestParseValidationMode(t *testing.T) {
	for in, want := range map[string]ValidationMode{"": ModeJWTOnly, "jwt_only": ModeJWTOnly, "STRICT": ModeStrict} {
		got, err := ParseValidationMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseValidationMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseValidationMode("hybrid"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if ModeStrict.String() != "strict" {
		t.Fatalf("unexpected mode name %q", ModeStrict.String())
	}
}

func TestBuildRequirements(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected build without user store to fail")
	}

	cfg := testConfig()
	cfg.ValidationMode = ModeStrict
	if _, err := New().WithConfig(cfg).WithUserStore(newStubUsers()).Build(); err == nil {
		t.Fatal("expected strict mode without redis to fail")
	}

	b := New().WithConfig(testConfig()).WithUserStore(newStubUsers())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}

func TestBuildCopiesConfig(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg).WithUserStore(newStubUsers())
	cfg.Token.Secret[0] = 'X'

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	if engine.config.Token.Secret[0] == 'X' {
		t.Fatal("engine config shares the caller's secret slice")
	}
	if engine.config.Token.Issuer != DevelopmentSiteURL {
		t.Fatalf("expected default issuer, got %q", engine.config.Token.Issuer)
	}

	report := engine.SecurityReport()
	if report.SigningAlgorithm != jwt.MethodHS256 || report.RegistryEnabled || report.LogoutRevokes {
		t.Fatalf("unexpected report %+v", report)
	}
}
