package siteauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimbuild/siteauth/jwt"
)

// Refresh rotates a refresh token into a new pair. The old token's jti is
// revoked as part of the rotation, so a token can be rotated once; a second
// presentation fails with ErrTokenRevoked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := e.parseToken(refreshToken, jwt.PurposeRefresh)
	if err != nil {
		return TokenPair{}, e.refreshFailed(ctx, nil, err)
	}
	subject := &Account{ID: claims.UID, Role: Role(claims.Role)}

	revoked, err := e.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	if revoked {
		return TokenPair{}, e.refreshReused(ctx, subject)
	}

	account, err := e.accounts.GetByID(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return TokenPair{}, e.refreshFailed(ctx, subject, ErrInvalidToken)
		}
		return TokenPair{}, storeErr(err)
	}
	if account.Deleted {
		return TokenPair{}, e.refreshFailed(ctx, &account, ErrAccountDeleted)
	}
	if !account.EmailVerified {
		return TokenPair{}, e.refreshFailed(ctx, &account, ErrAccountUnverified)
	}

	claimed, err := e.revoked.Revoke(ctx, claims.ID, e.denylistTTL(claims))
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	if !claimed {
		return TokenPair{}, e.refreshReused(ctx, &account)
	}

	pair, err := e.issuePair(account)
	if err != nil {
		return TokenPair{}, err
	}
	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefresh, true, &account, nil, nil)
	return pair, nil
}

// denylistTTL keeps a revoked jti listed for as long as Parse still accepts
// the token, which includes the verification leeway past exp.
func (e *Engine) denylistTTL(claims *jwt.Claims) time.Duration {
	return claims.ExpiresAt.Sub(e.now()) + e.config.Tokens.Leeway
}

func (e *Engine) refreshReused(ctx context.Context, account *Account) error {
	e.metricInc(MetricRefreshFailure)
	e.metricInc(MetricRefreshReuseDetected)
	e.emitAudit(ctx, auditEventRefreshReuse, false, account, ErrTokenRevoked, nil)
	return ErrTokenRevoked
}

func (e *Engine) refreshFailed(ctx context.Context, account *Account, err error) error {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefresh, false, account, err, nil)
	return err
}

// Logout revokes a refresh token until it would have expired. Expired tokens
// are accepted as already logged out; malformed ones fail with
// ErrInvalidToken. Logging out twice is not an error.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	claims, err := e.tokens.Parse(refreshToken, jwt.PurposeRefresh)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil
		}
		return ErrInvalidToken
	}

	if _, err := e.revoked.Revoke(ctx, claims.ID, e.denylistTTL(claims)); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, &Account{ID: claims.UID, Role: Role(claims.Role)}, nil, nil)
	return nil
}
