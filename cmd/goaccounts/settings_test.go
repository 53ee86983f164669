package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	goAccounts "github.com/MrEthical07/goAccounts"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongSecret = "cmd-test-secret-0123456789abcdefghij"

func TestEngineConfigRequiresSecret(t *testing.T) {
	_, err := settings{}.engineConfig()
	assert.ErrorIs(t, err, goAccounts.ErrMissingTokenSecret)

	_, err = settings{TokenSecret: goAccounts.PublishedSecret}.engineConfig()
	assert.Error(t, err, "the published example secret must be rejected")
}

func TestEngineConfigFromSettings(t *testing.T) {
	cfg, err := settings{
		TokenSecret:    strongSecret,
		TokenTTL:       2 * time.Hour,
		ValidationMode: "strict",
		Environment:    "Production",
	}.engineConfig()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.Token.TTL)
	assert.Equal(t, goAccounts.ModeStrict, cfg.ValidationMode)
	assert.True(t, cfg.Security.ProductionMode)
	assert.Equal(t, goAccounts.ProductionSiteURL, cfg.Token.Issuer)

	_, err = settings{TokenSecret: strongSecret, ValidationMode: "sometimes"}.engineConfig()
	assert.Error(t, err)
}

func TestProductionRejectsShortSecret(t *testing.T) {
	_, err := settings{TokenSecret: "short-secret", Environment: "production"}.engineConfig()
	assert.ErrorIs(t, err, goAccounts.ErrInsecureTokenSecret)

	_, err = settings{TokenSecret: "short-secret"}.engineConfig()
	assert.NoError(t, err, "short secrets are allowed outside production")
}

func TestSiteURL(t *testing.T) {
	assert.Equal(t, goAccounts.DevelopmentSiteURL, settings{}.siteURL())
	assert.Equal(t, goAccounts.ProductionSiteURL, settings{Environment: "production"}.siteURL())
	assert.Equal(t, "https://accounts.example.org", settings{Environment: "production", SiteURL: "https://accounts.example.org"}.siteURL())
}

func TestViperPrecedence(t *testing.T) {
	t.Setenv("TOKEN_SECRET", strongSecret)
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("redis-addr", "", "")
	flags.String("listen-addr", ":4000", "")
	require.NoError(t, flags.Parse([]string{"--redis-addr", "localhost:6380"}))

	v, err := newViper(flags)
	require.NoError(t, err)
	s := loadSettings(v)

	assert.Equal(t, strongSecret, s.TokenSecret)
	assert.Equal(t, 90*time.Minute, s.TokenTTL)
	assert.Equal(t, "localhost:6380", s.RedisAddr, "flags win over the environment")
	assert.Equal(t, ":4000", s.ListenAddr)
	assert.Empty(t, s.AllowedOrigins)
	assert.Equal(t, "info", s.LogLevel)
	assert.False(t, s.production())
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("GOACCOUNTS_DOTENV_PROBE=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("GOACCOUNTS_DOTENV_PROBE") })

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("GOACCOUNTS_DOTENV_PROBE"))
}

func TestLoggerLevel(t *testing.T) {
	_, err := settings{LogLevel: "loud"}.logger()
	assert.Error(t, err)

	log, err := settings{LogLevel: "debug", Environment: "production"}.logger()
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestSchemaCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"schema", "--env-file", filepath.Join(t.TempDir(), "none.env")})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "publicField: String")
	assert.Contains(t, out.String(), "firstName: String")
}

func TestUserAddNeedsDatabase(t *testing.T) {
	t.Setenv("TOKEN_SECRET", strongSecret)
	t.Setenv("DATABASE_URL", "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"user", "add", "--email", "a@example.com", "--password", "long-enough-pw",
		"--env-file", filepath.Join(t.TempDir(), "none.env")})

	assert.Error(t, root.Execute())
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, ,https://admin.example.com")

	v, err := newViper(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, loadSettings(v).AllowedOrigins)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("allowed-origins", "", "")
	require.NoError(t, flags.Parse([]string{"--allowed-origins", "https://flag.example.com"}))
	v, err = newViper(flags)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://flag.example.com"}, loadSettings(v).AllowedOrigins)
}
