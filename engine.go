package siteauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimbuild/siteauth/internal/audit"
	"github.com/aimbuild/siteauth/internal/limiters"
	"github.com/aimbuild/siteauth/internal/rate"
	"github.com/aimbuild/siteauth/internal/stores"
	"github.com/aimbuild/siteauth/jwt"
	"github.com/aimbuild/siteauth/password"
	"go.uber.org/zap"
)

// Engine is the auth orchestrator. It is safe for concurrent use once built.
type Engine struct {
	config    Config
	accounts  AccountStore
	companies CompanyDirectory
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time

	hasher  *password.Hasher
	tokens  *jwt.Manager
	lockout limiters.LockoutPolicy
	otp     *otpIssuer
	revoked *stores.RevocationStore
	loginIP *rate.Limiter

	audit   *audit.Dispatcher
	metrics *Metrics
}

// TokenPurpose names what a signed token may be used for.
type TokenPurpose = jwt.Purpose

const (
	PurposeAccess        = jwt.PurposeAccess
	PurposeRefresh       = jwt.PurposeRefresh
	PurposeVerifyEmail   = jwt.PurposeVerifyEmail
	PurposeResetPassword = jwt.PurposeResetPassword
)

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) issuePair(account Account) (TokenPair, error) {
	sub := jwt.Subject{UID: account.ID, Email: account.Email, Role: string(account.Role)}
	access, err := e.tokens.Issue(sub, jwt.PurposeAccess)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := e.tokens.Issue(sub, jwt.PurposeRefresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:   access.Value,
		RefreshToken:  refresh.Value,
		AccessExpiry:  access.ExpiresAt,
		RefreshExpiry: refresh.ExpiresAt,
	}, nil
}

// parseToken maps jwt failures onto ErrInvalidToken.
func (e *Engine) parseToken(token string, purpose jwt.Purpose) (*jwt.Claims, error) {
	claims, err := e.tokens.Parse(token, purpose)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	if len(pw) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}
	return nil
}

// notify runs send and records failures. The error is returned only when
// Notify.FailOnError is set.
func (e *Engine) notify(kind, to string, send func() error) error {
	err := send()
	if err == nil {
		return nil
	}
	e.metricInc(MetricNotificationFailure)
	e.logger.Warn("email delivery failed", zap.String("kind", kind), zap.String("to", to), zap.Error(err))
	if e.config.Notify.FailOnError {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	return nil
}

// storeErr passes typed errors through and wraps backend failures.
func storeErr(err error) error {
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (e *Engine) lookupByEmail(ctx context.Context, email string) (Account, error) {
	account, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		return Account{}, storeErr(err)
	}
	return account, nil
}
