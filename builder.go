package goAccounts

import (
	"errors"
	"time"

	"github.com/MrEthical07/goAccounts/internal/events"
	internalmetrics "github.com/MrEthical07/goAccounts/internal/metrics"
	"github.com/MrEthical07/goAccounts/jwt"
	"github.com/MrEthical07/goAccounts/password"
	"github.com/MrEthical07/goAccounts/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder is single use and not safe for
// concurrent use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	users  UserStore
	logger *zap.Logger
	clock  func() time.Time

	handlers map[EventKind][]EventHandler

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config:   DefaultConfig(),
		handlers: make(map[EventKind][]EventHandler),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis enables the session registry. Required in ModeStrict.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the store sessions load users from. Required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithLogger sets the engine logger. Defaults to zap.NewNop.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source for tokens, session records and
// events.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the session resolution latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// OnEvent subscribes handler to events of kind. Subscriptions are fixed when
// Build returns; handlers registered later never run.
func (b *Builder) OnEvent(kind EventKind, handler EventHandler) *Builder {
	if handler != nil {
		b.handlers[kind] = append(b.handlers[kind], handler)
	}
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil && cfg.ValidationMode == ModeStrict {
		return nil, errors.New("Strict mode requires redis client")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	issuer := cfg.Token.Issuer
	if issuer == "" {
		issuer = DefaultSiteURL(cfg.Security.ProductionMode)
	}
	cfg.Token.Issuer = issuer

	signKey := cfg.Token.Secret
	if cfg.Token.SigningMethod == jwt.MethodEd25519 {
		signKey = cfg.Token.PrivateKey
	}
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Token.TTL,
		SigningMethod: cfg.Token.SigningMethod,
		PrivateKey:    cloneBytes(signKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		KeyID:         cfg.Token.KeyID,
		VerifyKeys:    cfg.Token.VerifyKeys,
		Now:           b.clock,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.New(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		users:     b.users,
		tokens:    tokens,
		passwords: hasher,
		log:       logger,
		clock:     b.clock,
		metrics: internalmetrics.New(internalmetrics.Config{
			Enabled:                 cfg.Metrics.Enabled,
			EnableLatencyHistograms: cfg.Metrics.EnableLatencyHistograms,
		}),
		events: events.NewBus(events.Config{
			Async:      cfg.Events.Async,
			BufferSize: cfg.Events.BufferSize,
			DropIfFull: cfg.Events.DropIfFull,
		}, b.handlers, logger.Named("events")),
	}
	if b.redis != nil {
		engine.sessions = session.NewStore(b.redis, cfg.Session.RedisPrefix)
	}

	b.built = true
	b.handlers = nil

	return engine, nil
}
