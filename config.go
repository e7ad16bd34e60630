package siteauth

import (
	"errors"
	"time"

	"github.com/aimbuild/siteauth/internal/limiters"
	"github.com/aimbuild/siteauth/jwt"
	"github.com/aimbuild/siteauth/password"
)

// Config is the full engine configuration. Obtain defaults with
// DefaultConfig, override what you need and pass it to Builder.WithConfig.
type Config struct {
	Tokens    TokensConfig
	Lockout   LockoutConfig
	OTP       OTPConfig
	Password  PasswordConfig
	Security  SecurityConfig
	Notify    NotifyConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
}

/*
====================================
TOKENS CONFIG
====================================
*/

// TokenKey is the signing material and lifetime of one token purpose.
type TokenKey struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
}

// TokensConfig holds one key per purpose. Keys must differ between purposes.
type TokensConfig struct {
	Access        TokenKey
	Refresh       TokenKey
	VerifyEmail   TokenKey
	ResetPassword TokenKey
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
LOCKOUT / OTP / PASSWORD
====================================
*/

// LockoutConfig locks an account for LockDuration after MaxAttempts
// consecutive wrong passwords.
type LockoutConfig struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// OTPConfig controls one-time codes.
type OTPConfig struct {
	Digits int
	TTL    time.Duration
	// MaxAttempts wrong guesses destroy the code.
	MaxAttempts int
	// RequestLimit codes may be issued per email per RequestWindow.
	// Zero disables the throttle.
	RequestLimit     int
	RequestWindow    time.Duration
	EnableIPThrottle bool
	RedisPrefix      string
}

// PasswordConfig holds the password policy and Argon2id cost.
type PasswordConfig struct {
	MinLength      int
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	// TemporaryLength is the length of generated passwords for invited and
	// staff accounts.
	TemporaryLength int
}

/*
====================================
SECURITY / NOTIFY / AUDIT / METRICS
====================================
*/

// SecurityConfig groups deployment-wide switches.
type SecurityConfig struct {
	// ProductionMode hides OTP values from results and logs.
	ProductionMode   bool
	RevocationPrefix string
}

// NotifyConfig decides how email delivery failures propagate.
type NotifyConfig struct {
	// FailOnError turns delivery failures of OTP and invite emails into
	// ErrNotificationFailed. Registration never fails on delivery.
	FailOnError bool
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// RateLimitConfig throttles login attempts per client IP. Zero
// LoginPerIP disables it.
type RateLimitConfig struct {
	LoginPerIP  int
	LoginWindow time.Duration
}

// DefaultConfig returns a configuration with every field except token keys
// set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	params := password.DefaultParams()
	return Config{
		Tokens: TokensConfig{
			Access:        TokenKey{TTL: time.Hour, SigningMethod: "hs256"},
			Refresh:       TokenKey{TTL: 24 * time.Hour, SigningMethod: "hs256"},
			VerifyEmail:   TokenKey{TTL: 10 * time.Minute, SigningMethod: "hs256"},
			ResetPassword: TokenKey{TTL: 10 * time.Minute, SigningMethod: "hs256"},
			Issuer:        "siteauth",
			Leeway:        5 * time.Second,
		},
		Lockout: LockoutConfig{
			MaxAttempts:  5,
			LockDuration: 15 * time.Minute,
		},
		OTP: OTPConfig{
			Digits:        6,
			TTL:           10 * time.Minute,
			MaxAttempts:   5,
			RequestLimit:  5,
			RequestWindow: 15 * time.Minute,
			RedisPrefix:   "sa:otp",
		},
		Password: PasswordConfig{
			MinLength:       8,
			Memory:          params.Memory,
			Time:            params.Time,
			Parallelism:     params.Parallelism,
			SaltLength:      params.SaltLength,
			KeyLength:       params.KeyLength,
			UpgradeOnLogin:  true,
			TemporaryLength: 12,
		},
		Security: SecurityConfig{
			ProductionMode:   true,
			RevocationPrefix: "sa:revoked",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			LoginPerIP:  30,
			LoginWindow: time.Minute,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.Access = cloneKey(cfg.Tokens.Access)
	out.Tokens.Refresh = cloneKey(cfg.Tokens.Refresh)
	out.Tokens.VerifyEmail = cloneKey(cfg.Tokens.VerifyEmail)
	out.Tokens.ResetPassword = cloneKey(cfg.Tokens.ResetPassword)
	return out
}

func cloneKey(k TokenKey) TokenKey {
	k.PrivateKey = cloneBytes(k.PrivateKey)
	k.PublicKey = cloneBytes(k.PublicKey)
	return k
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

// Validate reports the first invalid field. Token key material is checked
// when the token manager is built.
func (c *Config) Validate() error {
	keys := []struct {
		name string
		key  TokenKey
	}{
		{"Access", c.Tokens.Access},
		{"Refresh", c.Tokens.Refresh},
		{"VerifyEmail", c.Tokens.VerifyEmail},
		{"ResetPassword", c.Tokens.ResetPassword},
	}
	for _, entry := range keys {
		name, k := entry.name, entry.key
		if k.TTL <= 0 {
			return errors.New("Tokens " + name + " TTL must be > 0")
		}
		if len(k.PrivateKey) == 0 {
			return errors.New("Tokens " + name + " PrivateKey is required")
		}
		switch k.SigningMethod {
		case "", "hs256", "ed25519":
		default:
			return errors.New("Tokens " + name + " SigningMethod must be 'hs256' or 'ed25519'")
		}
	}
	if c.Tokens.Access.TTL >= c.Tokens.Refresh.TTL {
		return errors.New("Tokens Access TTL must be shorter than Refresh TTL")
	}
	if c.Tokens.Leeway < 0 || c.Tokens.Leeway > 2*time.Minute {
		return errors.New("Tokens Leeway must be between 0 and 2m")
	}

	if err := (limiters.LockoutPolicy{MaxAttempts: c.Lockout.MaxAttempts, LockDuration: c.Lockout.LockDuration}).Validate(); err != nil {
		return errors.New("Lockout: " + err.Error())
	}

	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	if c.OTP.RequestLimit < 0 {
		return errors.New("OTP RequestLimit must be >= 0")
	}
	if c.OTP.RequestLimit > 0 && c.OTP.RequestWindow <= 0 {
		return errors.New("OTP RequestWindow must be > 0 when RequestLimit is set")
	}

	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}
	if c.Password.TemporaryLength < c.Password.MinLength {
		return errors.New("Password TemporaryLength must be >= MinLength")
	}
	if err := c.passwordParams().Validate(); err != nil {
		return err
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}
	if c.RateLimit.LoginPerIP < 0 {
		return errors.New("RateLimit LoginPerIP must be >= 0")
	}
	if c.RateLimit.LoginPerIP > 0 && c.RateLimit.LoginWindow <= 0 {
		return errors.New("RateLimit LoginWindow must be > 0 when LoginPerIP is set")
	}
	return nil
}

func (c *Config) passwordParams() password.Params {
	return password.Params{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
	}
}

func (c *Config) lockoutPolicy() limiters.LockoutPolicy {
	return limiters.LockoutPolicy{MaxAttempts: c.Lockout.MaxAttempts, LockDuration: c.Lockout.LockDuration}
}

func (c *Config) jwtConfig(now func() time.Time) jwt.Config {
	key := func(k TokenKey) jwt.KeyConfig {
		return jwt.KeyConfig{
			TTL:           k.TTL,
			SigningMethod: jwt.SigningMethod(k.SigningMethod),
			PrivateKey:    k.PrivateKey,
			PublicKey:     k.PublicKey,
		}
	}
	return jwt.Config{
		Keys: map[jwt.Purpose]jwt.KeyConfig{
			jwt.PurposeAccess:        key(c.Tokens.Access),
			jwt.PurposeRefresh:       key(c.Tokens.Refresh),
			jwt.PurposeVerifyEmail:   key(c.Tokens.VerifyEmail),
			jwt.PurposeResetPassword: key(c.Tokens.ResetPassword),
		},
		Issuer:   c.Tokens.Issuer,
		Audience: c.Tokens.Audience,
		Leeway:   c.Tokens.Leeway,
		Now:      now,
	}
}
