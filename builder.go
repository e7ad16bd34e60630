package siteauth

import (
	"errors"
	"time"

	"github.com/aimbuild/siteauth/internal/audit"
	"github.com/aimbuild/siteauth/internal/limiters"
	"github.com/aimbuild/siteauth/internal/rate"
	"github.com/aimbuild/siteauth/internal/stores"
	"github.com/aimbuild/siteauth/jwt"
	"github.com/aimbuild/siteauth/password"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountStore
	companies CompanyDirectory
	notifier  Notifier
	auditSink AuditSink
	logger    *zap.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder holding the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing OTP records, the revocation list and the
// throttles. Both *redis.Client and *redis.ClusterClient work.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

func (b *Builder) WithCompanyDirectory(dir CompanyDirectory) *Builder {
	b.companies = dir
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token timestamps, lockout windows and OTP
// expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.companies == nil {
		return nil, errors.New("company directory required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	hasher, err := password.NewHasher(cfg.passwordParams())
	if err != nil {
		return nil, err
	}
	tokens, err := jwt.NewManager(cfg.jwtConfig(now))
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		accounts:  b.accounts,
		companies: b.companies,
		notifier:  b.notifier,
		logger:    logger,
		now:       now,
		hasher:    hasher,
		tokens:    tokens,
		lockout:   cfg.lockoutPolicy(),
		revoked:   stores.NewRevocationStore(b.redis, cfg.Security.RevocationPrefix),
		loginIP: rate.New(b.redis, rate.Config{
			MaxAttempts: cfg.RateLimit.LoginPerIP,
			Window:      cfg.RateLimit.LoginWindow,
		}),
		metrics: NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Now:        now,
		}, b.auditSink),
	}
	engine.otp = &otpIssuer{
		store: stores.NewOTPStore(b.redis, cfg.OTP.RedisPrefix),
		requests: limiters.NewOTPRequestLimiter(b.redis, limiters.OTPRequestConfig{
			MaxRequests:      cfg.OTP.RequestLimit,
			Window:           cfg.OTP.RequestWindow,
			EnableIPThrottle: cfg.OTP.EnableIPThrottle,
		}),
		digits:      cfg.OTP.Digits,
		ttl:         cfg.OTP.TTL,
		maxAttempts: cfg.OTP.MaxAttempts,
		now:         now,
	}

	b.built = true
	return engine, nil
}
