package goAccounts

import (
	"time"

	"github.com/MrEthical07/goAccounts/jwt"
)

// SecurityReport summarizes the effective security posture of an Engine. It
// is printed by "goaccounts serve" at startup.
type SecurityReport struct {
	ProductionMode   bool
	SigningAlgorithm jwt.SigningMethod
	ValidationMode   ValidationMode
	TokenTTL         time.Duration
	Issuer           string
	Audience         string
	KeyRotation      bool
	CookieName       string
	RegistryEnabled  bool
	LogoutRevokes    bool
	SecretBytes      int
	Argon2           PasswordConfigReport
	EventsAsync      bool
	MetricsEnabled   bool
}

// PasswordConfigReport mirrors PasswordConfig.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	secretBytes := 0
	if e.config.Token.SigningMethod == jwt.MethodHS256 {
		secretBytes = len(e.config.Token.Secret)
	}

	return SecurityReport{
		ProductionMode:   e.config.Security.ProductionMode,
		SigningAlgorithm: e.config.Token.SigningMethod,
		ValidationMode:   e.config.ValidationMode,
		TokenTTL:         e.config.Token.TTL,
		Issuer:           e.config.Token.Issuer,
		Audience:         e.config.Token.Audience,
		KeyRotation:      len(e.config.Token.VerifyKeys) > 0,
		CookieName:       e.config.Session.CookieName,
		RegistryEnabled:  e.sessions != nil,
		LogoutRevokes:    e.config.ValidationMode == ModeStrict,
		SecretBytes:      secretBytes,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		EventsAsync:    e.config.Events.Async,
		MetricsEnabled: e.config.Metrics.Enabled,
	}
}
