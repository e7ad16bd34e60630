// Package config loads the siteauthd server configuration.
//
// Values resolve in order: built-in defaults, the YAML file, a .env file and
// finally the process environment (SITEAUTH_* variables). Later sources win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aimbuild/siteauth"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	TrustProxy      bool          `yaml:"trust_proxy"` // client IP from X-Forwarded-For / X-Real-IP
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type TokensConfig struct {
	AccessSecret  string        `yaml:"access_secret"`
	RefreshSecret string        `yaml:"refresh_secret"`
	VerifySecret  string        `yaml:"verify_secret"`
	ResetSecret   string        `yaml:"reset_secret"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	VerifyTTL     time.Duration `yaml:"verify_ttl"`
	ResetTTL      time.Duration `yaml:"reset_ttl"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
}

type LockoutConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Duration    time.Duration `yaml:"duration"`
}

type OTPConfig struct {
	Digits        int           `yaml:"digits"`
	TTL           time.Duration `yaml:"ttl"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RequestLimit  int           `yaml:"request_limit"`
	RequestWindow time.Duration `yaml:"request_window"`
}

// MailConfig selects the notifier. Driver is "smtp" or "log".
type MailConfig struct {
	Driver       string `yaml:"driver"`
	From         string `yaml:"from"`
	Brand        string `yaml:"brand"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	ImplicitTLS  bool   `yaml:"implicit_tls"`
	FailOnError  bool   `yaml:"fail_on_error"`
}

// AuditConfig selects the audit sink. Sink is "none", "log" or "kafka".
type AuditConfig struct {
	Sink         string   `yaml:"sink"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	BufferSize   int      `yaml:"buffer_size"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Latency bool `yaml:"latency"`
}

type RateLimitConfig struct {
	LoginPerIP  int           `yaml:"login_per_ip"`
	LoginWindow time.Duration `yaml:"login_window"`
}

// CompanyConfig seeds one company at startup when ID is set.
type CompanyConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Config is the resolved server configuration.
type Config struct {
	Env       string          `yaml:"env"`
	LogLevel  string          `yaml:"log_level"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Tokens    TokensConfig    `yaml:"tokens"`
	Lockout   LockoutConfig   `yaml:"lockout"`
	OTP       OTPConfig       `yaml:"otp"`
	Mail      MailConfig      `yaml:"mail"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Company   CompanyConfig   `yaml:"company"`
}

// Production reports whether the server runs in production mode.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

func defaults() Config {
	engine := siteauth.DefaultConfig()
	return Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{MigrateOnStart: true, MaxOpenConns: 20},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Tokens: TokensConfig{
			AccessTTL:  engine.Tokens.Access.TTL,
			RefreshTTL: engine.Tokens.Refresh.TTL,
			VerifyTTL:  engine.Tokens.VerifyEmail.TTL,
			ResetTTL:   engine.Tokens.ResetPassword.TTL,
			Issuer:     engine.Tokens.Issuer,
		},
		Lockout: LockoutConfig{MaxAttempts: engine.Lockout.MaxAttempts, Duration: engine.Lockout.LockDuration},
		OTP: OTPConfig{
			Digits:        engine.OTP.Digits,
			TTL:           engine.OTP.TTL,
			MaxAttempts:   engine.OTP.MaxAttempts,
			RequestLimit:  engine.OTP.RequestLimit,
			RequestWindow: engine.OTP.RequestWindow,
		},
		Mail:      MailConfig{Driver: "log", From: "noreply@aimconstructionmgt.com", Brand: "Aim Construction", SMTPPort: 587},
		Audit:     AuditConfig{Sink: "log", KafkaTopic: "siteauth.audit", BufferSize: engine.Audit.BufferSize},
		Metrics:   MetricsConfig{Enabled: true},
		RateLimit: RateLimitConfig{LoginPerIP: engine.RateLimit.LoginPerIP, LoginWindow: engine.RateLimit.LoginWindow},
	}
}

// Load resolves the configuration from path and a .env file in the working
// directory. A missing file of either kind is not an error.
func Load(path string) (Config, error) {
	return LoadWithEnvFile(path, ".env")
}

// LoadWithEnvFile is Load with an explicit .env location. Variables already
// present in the environment are not overwritten by the .env file.
func LoadWithEnvFile(path, envFile string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = splitList(v)
		}
	}

	str("SITEAUTH_ENV", &cfg.Env)
	str("SITEAUTH_LOG_LEVEL", &cfg.LogLevel)
	str("SITEAUTH_HTTP_ADDR", &cfg.HTTP.Addr)
	list("SITEAUTH_CORS_ORIGINS", &cfg.HTTP.CORSOrigins)
	flag("SITEAUTH_HTTP_TRUST_PROXY", &cfg.HTTP.TrustProxy)
	str("SITEAUTH_DATABASE_URL", &cfg.Database.URL)
	flag("SITEAUTH_DATABASE_MIGRATE", &cfg.Database.MigrateOnStart)
	str("SITEAUTH_REDIS_ADDR", &cfg.Redis.Addr)
	str("SITEAUTH_REDIS_PASSWORD", &cfg.Redis.Password)
	num("SITEAUTH_REDIS_DB", &cfg.Redis.DB)
	str("SITEAUTH_ACCESS_SECRET", &cfg.Tokens.AccessSecret)
	str("SITEAUTH_REFRESH_SECRET", &cfg.Tokens.RefreshSecret)
	str("SITEAUTH_VERIFY_SECRET", &cfg.Tokens.VerifySecret)
	str("SITEAUTH_RESET_SECRET", &cfg.Tokens.ResetSecret)
	dur("SITEAUTH_ACCESS_TTL", &cfg.Tokens.AccessTTL)
	dur("SITEAUTH_REFRESH_TTL", &cfg.Tokens.RefreshTTL)
	num("SITEAUTH_LOCKOUT_MAX_ATTEMPTS", &cfg.Lockout.MaxAttempts)
	dur("SITEAUTH_LOCKOUT_DURATION", &cfg.Lockout.Duration)
	dur("SITEAUTH_OTP_TTL", &cfg.OTP.TTL)
	str("SITEAUTH_MAIL_DRIVER", &cfg.Mail.Driver)
	str("SITEAUTH_MAIL_FROM", &cfg.Mail.From)
	str("SITEAUTH_SMTP_HOST", &cfg.Mail.SMTPHost)
	num("SITEAUTH_SMTP_PORT", &cfg.Mail.SMTPPort)
	str("SITEAUTH_SMTP_USERNAME", &cfg.Mail.SMTPUsername)
	str("SITEAUTH_SMTP_PASSWORD", &cfg.Mail.SMTPPassword)
	str("SITEAUTH_AUDIT_SINK", &cfg.Audit.Sink)
	list("SITEAUTH_KAFKA_BROKERS", &cfg.Audit.KafkaBrokers)
	str("SITEAUTH_KAFKA_TOPIC", &cfg.Audit.KafkaTopic)
	flag("SITEAUTH_METRICS_ENABLED", &cfg.Metrics.Enabled)
	num("SITEAUTH_LOGIN_PER_IP", &cfg.RateLimit.LoginPerIP)
	str("SITEAUTH_COMPANY_ID", &cfg.Company.ID)
	str("SITEAUTH_COMPANY_NAME", &cfg.Company.Name)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the settings the server cannot start without. Engine
// limits are validated again by siteauth.Config.Validate.
func (c Config) Validate() error {
	if c.Database.URL == "" && c.Production() {
		return errors.New("database url is required in production")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis addr is required")
	}
	for name, secret := range map[string]string{
		"access":  c.Tokens.AccessSecret,
		"refresh": c.Tokens.RefreshSecret,
		"verify":  c.Tokens.VerifySecret,
		"reset":   c.Tokens.ResetSecret,
	} {
		if len(secret) < 32 {
			return fmt.Errorf("%s token secret must be at least 32 bytes", name)
		}
	}
	switch c.Mail.Driver {
	case "log":
		if c.Production() {
			return errors.New("mail driver \"log\" is not allowed in production")
		}
	case "smtp":
		if c.Mail.SMTPHost == "" {
			return errors.New("smtp host is required for the smtp mail driver")
		}
	default:
		return fmt.Errorf("unknown mail driver %q", c.Mail.Driver)
	}
	switch c.Audit.Sink {
	case "none", "log":
	case "kafka":
		if len(c.Audit.KafkaBrokers) == 0 || c.Audit.KafkaTopic == "" {
			return errors.New("kafka audit sink needs brokers and a topic")
		}
	default:
		return fmt.Errorf("unknown audit sink %q", c.Audit.Sink)
	}
	return nil
}

// Engine maps the server configuration onto the engine configuration.
func (c Config) Engine() siteauth.Config {
	e := siteauth.DefaultConfig()
	e.Tokens.Access.PrivateKey = []byte(c.Tokens.AccessSecret)
	e.Tokens.Refresh.PrivateKey = []byte(c.Tokens.RefreshSecret)
	e.Tokens.VerifyEmail.PrivateKey = []byte(c.Tokens.VerifySecret)
	e.Tokens.ResetPassword.PrivateKey = []byte(c.Tokens.ResetSecret)
	e.Tokens.Access.TTL = c.Tokens.AccessTTL
	e.Tokens.Refresh.TTL = c.Tokens.RefreshTTL
	e.Tokens.VerifyEmail.TTL = c.Tokens.VerifyTTL
	e.Tokens.ResetPassword.TTL = c.Tokens.ResetTTL
	e.Tokens.Issuer = c.Tokens.Issuer
	e.Tokens.Audience = c.Tokens.Audience

	e.Lockout.MaxAttempts = c.Lockout.MaxAttempts
	e.Lockout.LockDuration = c.Lockout.Duration

	e.OTP.Digits = c.OTP.Digits
	e.OTP.TTL = c.OTP.TTL
	e.OTP.MaxAttempts = c.OTP.MaxAttempts
	e.OTP.RequestLimit = c.OTP.RequestLimit
	e.OTP.RequestWindow = c.OTP.RequestWindow

	e.Security.ProductionMode = c.Production()
	e.Notify.FailOnError = c.Mail.FailOnError

	e.Audit.Enabled = c.Audit.Sink != "none"
	if c.Audit.BufferSize > 0 {
		e.Audit.BufferSize = c.Audit.BufferSize
	}
	e.Metrics.Enabled = c.Metrics.Enabled
	e.Metrics.EnableLatencyHistograms = c.Metrics.Latency
	e.RateLimit.LoginPerIP = c.RateLimit.LoginPerIP
	e.RateLimit.LoginWindow = c.RateLimit.LoginWindow
	return e
}
