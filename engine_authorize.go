package siteauth

import (
	"context"
	"errors"
	"time"

	"github.com/aimbuild/siteauth/jwt"
)

// Authorize runs the request gate: it verifies the access token, reloads the
// account and checks its role against allowed. An empty allowed set admits
// any role.
//
// Failures: ErrMissingToken and ErrInvalidToken (401), ErrAccountNotFound for
// missing or deleted accounts (404), ErrAccountUnverified (400) and
// ErrForbiddenRole (403).
func (e *Engine) Authorize(ctx context.Context, accessToken string, allowed ...Role) (Principal, error) {
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricAuthorizeLatency, time.Since(start)) }()
	}

	principal, err := e.authorize(ctx, accessToken, allowed)
	if err != nil {
		e.metricInc(MetricAuthorizeDenied)
		var subject *Account
		if principal.AccountID != "" {
			subject = &principal.Account
		}
		e.emitAudit(ctx, auditEventAuthorizeDenied, false, subject, err, nil)
		return Principal{}, err
	}
	e.metricInc(MetricAuthorizeSuccess)
	return principal, nil
}

func (e *Engine) authorize(ctx context.Context, accessToken string, allowed []Role) (Principal, error) {
	if accessToken == "" {
		return Principal{}, ErrMissingToken
	}
	claims, err := e.parseToken(accessToken, jwt.PurposeAccess)
	if err != nil {
		return Principal{}, err
	}

	account, err := e.accounts.GetByID(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Principal{}, ErrAccountNotFound
		}
		return Principal{}, storeErr(err)
	}
	principal := Principal{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		Account:   account.Sanitized(),
	}
	if account.Deleted {
		return principal, ErrAccountNotFound
	}
	if !account.EmailVerified {
		return principal, ErrAccountUnverified
	}
	if len(allowed) > 0 && !roleAllowed(account.Role, allowed) {
		return principal, ErrForbiddenRole
	}
	return principal, nil
}

func roleAllowed(role Role, allowed []Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
