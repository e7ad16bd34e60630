package siteauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimbuild/siteauth/internal/limiters"
	"github.com/aimbuild/siteauth/internal/rate"
	"go.uber.org/zap"
)

// Login checks credentials and issues an access and refresh token pair.
//
// Unknown emails and wrong passwords both fail with ErrInvalidCredentials.
// The attempt that reaches Lockout.MaxAttempts fails with
// ErrLockoutTriggered; later attempts inside the window fail with
// ErrAccountLocked without touching the counter, even with the right
// password.
func (e *Engine) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	if err := e.loginIP.AllowLogin(ctx, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginFailure, false, nil, ErrLoginRateLimited, nil)
			return LoginResult{}, ErrLoginRateLimited
		}
		return LoginResult{}, fmt.Errorf("%w: %v", ErrRateLimitUnavailable, err)
	}

	account, err := e.accounts.GetByEmail(ctx, NormalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.hasher.VerifyDummy(in.Password)
			return LoginResult{}, e.loginFailed(ctx, nil, ErrInvalidCredentials)
		}
		return LoginResult{}, storeErr(err)
	}

	if !account.EmailVerified {
		return LoginResult{}, e.loginFailed(ctx, &account, ErrAccountUnverified)
	}
	if account.Deleted {
		return LoginResult{}, e.loginFailed(ctx, &account, ErrAccountDeleted)
	}

	now := e.now()
	if limiters.IsLocked(account.LockUntil, now) {
		e.metricInc(MetricLoginRejectedLocked)
		return LoginResult{}, e.loginFailed(ctx, &account, ErrAccountLocked)
	}

	ok, err := e.hasher.Verify(in.Password, account.PasswordHash)
	if err != nil {
		e.logger.Error("stored password hash unreadable", zap.String("account_id", account.ID), zap.Error(err))
		return LoginResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return LoginResult{}, e.recordFailure(ctx, account, now)
	}

	if account.FailedLoginAttempts > 0 || account.LockUntil != nil {
		if err := e.accounts.ResetLoginFailures(ctx, account.ID); err != nil {
			return LoginResult{}, storeErr(err)
		}
		account.FailedLoginAttempts = 0
		account.LockUntil = nil
	}

	e.maybeRehash(ctx, &account, in.Password)

	if in.FCMToken != "" && in.FCMToken != account.FCMToken {
		if err := e.accounts.UpdateFCMToken(ctx, account.ID, in.FCMToken); err != nil {
			return LoginResult{}, storeErr(err)
		}
		account.FCMToken = in.FCMToken
	}

	_, linked, err := e.companies.CompanyForAccount(ctx, account.ID)
	if err != nil {
		return LoginResult{}, storeErr(err)
	}

	tokens, err := e.issuePair(account)
	if err != nil {
		return LoginResult{}, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, &account, nil, nil)
	return LoginResult{Account: account.Sanitized(), Tokens: tokens, SetupComplete: linked}, nil
}

// recordFailure counts a wrong password. The store applies the lockout rule
// in a single atomic update, so concurrent failures are never lost.
func (e *Engine) recordFailure(ctx context.Context, account Account, now time.Time) error {
	state, err := e.accounts.RecordLoginFailure(ctx, account.ID, e.lockout.MaxAttempts, e.lockout.LockDuration, now)
	if err != nil {
		return storeErr(err)
	}
	if state.AlreadyLocked {
		// Another request locked the account since it was read.
		e.metricInc(MetricLoginRejectedLocked)
		return e.loginFailed(ctx, &account, ErrAccountLocked)
	}
	if limiters.IsLocked(state.LockUntil, now) {
		e.metricInc(MetricLockoutTriggered)
		e.logger.Info("account locked", zap.String("account_id", account.ID), zap.Time("until", *state.LockUntil))
		e.emitAudit(ctx, auditEventLockout, true, &account, nil, func() map[string]string {
			return map[string]string{"until": state.LockUntil.UTC().Format(time.RFC3339)}
		})
		return e.loginFailed(ctx, &account, ErrLockoutTriggered)
	}
	return e.loginFailed(ctx, &account, ErrInvalidCredentials)
}

func (e *Engine) loginFailed(ctx context.Context, account *Account, err error) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, account, err, nil)
	return err
}

// maybeRehash upgrades bcrypt or weaker Argon2 hashes. Failures are logged;
// the login still succeeds.
func (e *Engine) maybeRehash(ctx context.Context, account *Account, plain string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	need, err := e.hasher.NeedsUpgrade(account.PasswordHash)
	if err != nil || !need {
		return
	}
	hash, err := e.hasher.Hash(plain)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("account_id", account.ID), zap.Error(err))
		return
	}
	updated, err := e.accounts.UpdatePassword(ctx, PasswordUpdate{
		AccountID: account.ID,
		Hash:      hash,
		Flow:      account.Flow,
		Temporary: account.PasswordTemporary,
		ChangedAt: account.LastPasswordChange,
	})
	if err != nil {
		e.logger.Warn("password rehash not stored", zap.String("account_id", account.ID), zap.Error(err))
		return
	}
	*account = updated
	e.metricInc(MetricPasswordRehashed)
}
