package goAccounts

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goAccounts/jwt"
)

// PublishedSecret is the signing secret shipped with the original reference
// wiring. It is rejected by Validate.
const PublishedSecret = "awesome_secret_key"

const (
	// DefaultTokenTTL is the token lifetime used when Token.TTL is zero.
	DefaultTokenTTL = 7 * 24 * time.Hour
	// DefaultCookieName is the cookie read when no bearer token is present.
	DefaultCookieName = "accounts_token"
	// ProductionSiteURL is the issuer used in production when none is set.
	ProductionSiteURL = "https://myapp.com"
	// DevelopmentSiteURL is the issuer used outside production when none is set.
	DevelopmentSiteURL = "http://localhost:3000"
	minProductionSecret = 32
)

// Config is the engine configuration. It is copied by Builder.Build and
// treated as immutable afterwards.
type Config struct {
	Token          TokenConfig
	Session        SessionConfig
	Password       PasswordConfig
	Events         EventsConfig
	Metrics        MetricsConfig
	Security       SecurityConfig
	ValidationMode ValidationMode
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the identity token codec.
type TokenConfig struct {
	// Secret is the hs256 signing secret. Required unless SigningMethod is
	// ed25519.
	Secret        []byte
	TTL           time.Duration
	SigningMethod jwt.SigningMethod
	// PrivateKey and PublicKey hold the Ed25519 key pair (raw or PEM).
	PrivateKey []byte
	PublicKey  []byte
	// Issuer defaults to DefaultSiteURL(Security.ProductionMode).
	Issuer     string
	Audience   string
	Leeway     time.Duration
	KeyID      string
	VerifyKeys map[string][]byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures how sessions are found and recorded.
type SessionConfig struct {
	RedisPrefix string
	CookieName  string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id parameters used by Authenticate and
// CreateUser.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig selects synchronous or queued delivery of account events.
type EventsConfig struct {
	Async      bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig enables in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds deployment hardening switches.
type SecurityConfig struct {
	// ProductionMode tightens secret requirements and selects the production
	// site URL default.
	ProductionMode bool
}

// ValidationMode selects how much state a token must be backed by.
type ValidationMode int

const (
	// ModeJWTOnly trusts any authentic, unexpired token. Logout only removes
	// the session record when Redis is configured.
	ModeJWTOnly ValidationMode = iota
	// ModeStrict additionally requires the token's session record to exist in
	// Redis, so logout revokes the token immediately.
	ModeStrict
)

func (m ValidationMode) String() string {
	switch m {
	case ModeJWTOnly:
		return "jwt_only"
	case ModeStrict:
		return "strict"
	}
	return "unknown"
}

// ParseValidationMode accepts the names produced by ValidationMode.String.
func ParseValidationMode(s string) (ValidationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jwt_only", "jwt-only", "jwt":
		return ModeJWTOnly, nil
	case "strict":
		return ModeStrict, nil
	}
	return ModeJWTOnly, errors.New("unknown validation mode " + s)
}

// DefaultConfig returns the configuration used by New. Token.Secret is left
// empty on purpose: there is no usable default.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			TTL:           DefaultTokenTTL,
			SigningMethod: jwt.MethodHS256,
		},
		Session: SessionConfig{
			RedisPrefix: "acs",
			CookieName:  DefaultCookieName,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Events: EventsConfig{
			Async:      false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		ValidationMode: ModeJWTOnly,
	}
}

// DefaultSiteURL is the token issuer used when Token.Issuer is empty.
func DefaultSiteURL(production bool) string {
	if production {
		return ProductionSiteURL
	}
	return DevelopmentSiteURL
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	if cfg.Token.VerifyKeys != nil {
		out.Token.VerifyKeys = make(map[string][]byte, len(cfg.Token.VerifyKeys))
		for kid, key := range cfg.Token.VerifyKeys {
			out.Token.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found. It rejects a
// missing hs256 secret with ErrMissingTokenSecret and the published reference
// secret (or, in production, any secret under 32 bytes) with
// ErrInsecureTokenSecret.
func (c *Config) Validate() error {
	// Token
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be within [0, 2m]")
	}
	switch c.Token.SigningMethod {
	case jwt.MethodHS256:
		secret := strings.TrimSpace(string(c.Token.Secret))
		if secret == "" {
			return ErrMissingTokenSecret
		}
		if secret == PublishedSecret {
			return ErrInsecureTokenSecret
		}
	case jwt.MethodEd25519:
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.Token.PublicKey) == 0 && len(c.Token.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported Token SigningMethod")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if strings.ContainsAny(c.Session.RedisPrefix, " \t\r\n") {
		return errors.New("Session RedisPrefix must not contain whitespace")
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("Session CookieName must not be empty")
	}

	// Password
	if c.Password.Memory == 0 || c.Password.Time == 0 || c.Password.Parallelism == 0 {
		return errors.New("Password argon2 parameters must be > 0")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Events
	if c.Events.Async && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when Async is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	switch c.ValidationMode {
	case ModeJWTOnly, ModeStrict:
		// valid
	default:
		return errors.New("invalid ValidationMode")
	}

	if c.Security.ProductionMode {
		if c.Token.SigningMethod == jwt.MethodHS256 && len(c.Token.Secret) < minProductionSecret {
			return ErrInsecureTokenSecret
		}
		if c.Token.TTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires Token TTL <= 30d")
		}
		if c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
	}

	return nil
}
