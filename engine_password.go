package siteauth

import (
	"context"
	"fmt"
	"strings"
)

// ChangePassword replaces the password of an authenticated account after
// checking the current one. The old hash is overwritten, so the previous
// password stops working immediately.
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, next string) (Account, error) {
	if err := e.checkPasswordPolicy(next); err != nil {
		return Account{}, err
	}
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return Account{}, storeErr(err)
	}

	ok, err := e.hasher.Verify(current, account.PasswordHash)
	if err != nil {
		return Account{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChange, false, &account, ErrCurrentPasswordMismatch, nil)
		return Account{}, ErrCurrentPasswordMismatch
	}
	if current == next {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChange, false, &account, ErrPasswordReuse, nil)
		return Account{}, ErrPasswordReuse
	}

	updated, err := e.replacePassword(ctx, account, next)
	if err != nil {
		return Account{}, err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, &updated, nil, nil)
	return updated.Sanitized(), nil
}

// SetInitialPassword replaces a system generated password. It fails with
// ErrPasswordNotTemporary once the account has chosen its own password.
func (e *Engine) SetInitialPassword(ctx context.Context, accountID, next string) (Account, error) {
	if err := e.checkPasswordPolicy(next); err != nil {
		return Account{}, err
	}
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return Account{}, storeErr(err)
	}
	if !account.PasswordTemporary {
		e.emitAudit(ctx, auditEventInitialPasswordSet, false, &account, ErrPasswordNotTemporary, nil)
		return Account{}, ErrPasswordNotTemporary
	}
	if same, _ := e.hasher.Verify(next, account.PasswordHash); same {
		return Account{}, ErrPasswordReuse
	}

	updated, err := e.replacePassword(ctx, account, next)
	if err != nil {
		return Account{}, err
	}

	_ = e.notify("welcome", updated.Email, func() error {
		return e.notifier.SendWelcomeEmail(ctx, updated.Email, displayName(updated))
	})

	e.metricInc(MetricInitialPasswordSet)
	e.emitAudit(ctx, auditEventInitialPasswordSet, true, &updated, nil, nil)
	return updated.Sanitized(), nil
}

func (e *Engine) replacePassword(ctx context.Context, account Account, plain string) (Account, error) {
	hash, err := e.hasher.Hash(plain)
	if err != nil {
		return Account{}, err
	}
	updated, err := e.accounts.UpdatePassword(ctx, PasswordUpdate{
		AccountID: account.ID,
		Hash:      hash,
		Flow:      account.Flow,
		Temporary: false,
		ChangedAt: e.now(),
	})
	if err != nil {
		return Account{}, storeErr(err)
	}
	return updated, nil
}

func displayName(a Account) string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Email
	}
	return name
}
