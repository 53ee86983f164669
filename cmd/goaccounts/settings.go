package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	goAccounts "github.com/MrEthical07/goAccounts"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// settings is the process configuration read from flags, the environment
// and an optional .env file, in that order of precedence.
type settings struct {
	TokenSecret    string
	TokenTTL       time.Duration
	SiteURL        string
	DatabaseURL    string
	RedisAddr      string
	ListenAddr     string
	AllowedOrigins []string
	LogLevel       string
	Environment    string
	ValidationMode string
	EmbeddedRedis  bool
}

var envKeys = map[string]string{
	"token_secret":    "TOKEN_SECRET",
	"token_ttl":       "TOKEN_TTL",
	"site_url":        "SITE_URL",
	"database_url":    "DATABASE_URL",
	"redis_addr":      "REDIS_ADDR",
	"listen_addr":     "LISTEN_ADDR",
	"allowed_origins": "ALLOWED_ORIGINS",
	"log_level":       "LOG_LEVEL",
	"environment":     "ENVIRONMENT",
	"validation_mode": "VALIDATION_MODE",
}

// loadDotEnv reads path into the environment. A missing file is not an
// error; variables already set win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("token_ttl", goAccounts.DefaultTokenTTL)
	v.SetDefault("listen_addr", ":4000")
	v.SetDefault("log_level", "info")
	v.SetDefault("environment", "development")
	v.SetDefault("validation_mode", goAccounts.ModeJWTOnly.String())

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}
	return v, nil
}

func loadSettings(v *viper.Viper) settings {
	return settings{
		TokenSecret:    v.GetString("token_secret"),
		TokenTTL:       v.GetDuration("token_ttl"),
		SiteURL:        v.GetString("site_url"),
		DatabaseURL:    v.GetString("database_url"),
		RedisAddr:      v.GetString("redis_addr"),
		ListenAddr:     v.GetString("listen_addr"),
		AllowedOrigins: splitList(v.GetString("allowed_origins")),
		LogLevel:       v.GetString("log_level"),
		Environment:    v.GetString("environment"),
		ValidationMode: v.GetString("validation_mode"),
		EmbeddedRedis:  v.GetBool("embedded_redis"),
	}
}

// splitList parses a comma separated value, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (s settings) production() bool {
	return strings.EqualFold(strings.TrimSpace(s.Environment), "production")
}

func (s settings) siteURL() string {
	if s.SiteURL != "" {
		return s.SiteURL
	}
	return goAccounts.DefaultSiteURL(s.production())
}

// engineConfig maps settings onto the library configuration. A missing
// TOKEN_SECRET fails here rather than falling back to a default.
func (s settings) engineConfig() (goAccounts.Config, error) {
	cfg := goAccounts.DefaultConfig()
	if strings.TrimSpace(s.TokenSecret) == "" {
		return cfg, fmt.Errorf("TOKEN_SECRET: %w", goAccounts.ErrMissingTokenSecret)
	}
	mode, err := goAccounts.ParseValidationMode(s.ValidationMode)
	if err != nil {
		return cfg, err
	}

	cfg.Token.Secret = []byte(s.TokenSecret)
	if s.TokenTTL > 0 {
		cfg.Token.TTL = s.TokenTTL
	}
	cfg.Token.Issuer = s.siteURL()
	cfg.Security.ProductionMode = s.production()
	cfg.ValidationMode = mode
	cfg.Metrics.EnableLatencyHistograms = true

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (s settings) logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	zc := zap.NewDevelopmentConfig()
	if s.production() {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
