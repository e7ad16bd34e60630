package siteauth

import (
	"context"
	"errors"

	"github.com/aimbuild/siteauth/jwt"
)

// flowPurposes returns the OTP and token purpose the account's flow expects.
func flowPurposes(flow FlowState) (otpPurpose, jwt.Purpose) {
	if flow == FlowPendingReset {
		return otpResetPassword, jwt.PurposeResetPassword
	}
	return otpVerifyEmail, jwt.PurposeVerifyEmail
}

// VerifyEmail confirms the single-use token and OTP of the account's current
// flow, marks the email verified and issues a token pair.
//
// During a password reset the OTP is only checked here; ResetPassword
// consumes it.
func (e *Engine) VerifyEmail(ctx context.Context, email, token, otp string) (VerifyResult, error) {
	account, err := e.lookupByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return VerifyResult{}, err
	}
	if account.Deleted {
		return VerifyResult{}, ErrAccountDeleted
	}

	purpose, tokenPurpose := flowPurposes(account.Flow)
	claims, err := e.parseToken(token, tokenPurpose)
	if err != nil || claims.UID != account.ID {
		return VerifyResult{}, e.verifyFailed(ctx, &account, ErrInvalidToken)
	}

	if account.Flow == FlowPendingReset {
		err = e.otp.check(ctx, purpose, account.Email, otp)
	} else {
		err = e.otp.verify(ctx, purpose, account.Email, otp)
	}
	if err != nil {
		return VerifyResult{}, e.verifyFailed(ctx, &account, err)
	}

	if !account.EmailVerified {
		account, err = e.accounts.MarkEmailVerified(ctx, account.ID, e.now())
		if err != nil {
			return VerifyResult{}, storeErr(err)
		}
	}
	if account.Flow != FlowPendingReset {
		e.otp.discard(ctx, purpose, account.Email)
	}

	tokens, err := e.issuePair(account)
	if err != nil {
		return VerifyResult{}, err
	}

	e.metricInc(MetricVerifyEmailSuccess)
	e.emitAudit(ctx, auditEventVerifyEmail, true, &account, nil, func() map[string]string {
		return map[string]string{"flow": account.Flow.String()}
	})
	return VerifyResult{Account: account.Sanitized(), Tokens: tokens}, nil
}

func (e *Engine) verifyFailed(ctx context.Context, account *Account, err error) error {
	e.metricInc(MetricVerifyEmailFailure)
	e.emitAudit(ctx, auditEventVerifyEmail, false, account, err, nil)
	return err
}

// ResendOTP re-issues the OTP and token of whichever flow the account is in.
func (e *Engine) ResendOTP(ctx context.Context, email string) (ChallengeResult, error) {
	account, err := e.lookupByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return ChallengeResult{}, err
	}
	if account.Deleted {
		return ChallengeResult{}, ErrAccountDeleted
	}

	challenge, err := e.issueChallenge(ctx, account, account.Flow, false)
	if err != nil {
		e.emitAudit(ctx, auditEventOTPResend, false, &account, err, nil)
		return ChallengeResult{}, err
	}
	e.emitAudit(ctx, auditEventOTPResend, true, &account, nil, func() map[string]string {
		return map[string]string{"purpose": string(challenge.Purpose)}
	})
	return challenge, nil
}

// ForgotPassword starts a reset flow: it issues a reset OTP and token and
// moves the account to FlowPendingReset.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (ChallengeResult, error) {
	account, err := e.lookupByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return ChallengeResult{}, err
	}
	if account.Deleted {
		return ChallengeResult{}, ErrAccountDeleted
	}
	e.metricInc(MetricPasswordResetRequest)

	challenge, err := e.issueChallenge(ctx, account, FlowPendingReset, false)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, &account, err, nil)
		return ChallengeResult{}, err
	}
	if account.Flow != FlowPendingReset {
		if err := e.accounts.SetFlow(ctx, account.ID, FlowPendingReset, e.now()); err != nil {
			return ChallengeResult{}, storeErr(err)
		}
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, &account, nil, nil)
	return challenge, nil
}

// ResetPassword consumes the reset OTP, replaces the password hash and ends
// the reset flow. It also clears any lockout.
func (e *Engine) ResetPassword(ctx context.Context, email, newPassword, otp string) (Account, error) {
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return Account{}, err
	}
	account, err := e.lookupByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return Account{}, err
	}
	if account.Flow != FlowPendingReset {
		return Account{}, e.resetFailed(ctx, &account, ErrNoResetInProgress)
	}

	if err := e.otp.verify(ctx, otpResetPassword, account.Email, otp); err != nil {
		return Account{}, e.resetFailed(ctx, &account, err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return Account{}, err
	}
	next := FlowActive
	if !account.EmailVerified {
		next = FlowUnverified
	}
	updated, err := e.accounts.UpdatePassword(ctx, PasswordUpdate{
		AccountID: account.ID,
		Hash:      hash,
		Flow:      next,
		Temporary: false,
		ChangedAt: e.now(),
	})
	if err != nil {
		return Account{}, storeErr(err)
	}
	if updated.FailedLoginAttempts > 0 || updated.LockUntil != nil {
		if err := e.accounts.ResetLoginFailures(ctx, updated.ID); err != nil {
			return Account{}, storeErr(err)
		}
		updated.FailedLoginAttempts = 0
		updated.LockUntil = nil
	}
	e.otp.discard(ctx, otpResetPassword, updated.Email)

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordReset, true, &updated, nil, nil)
	return updated.Sanitized(), nil
}

func (e *Engine) resetFailed(ctx context.Context, account *Account, err error) error {
	e.metricInc(MetricPasswordResetFailure)
	e.emitAudit(ctx, auditEventPasswordReset, false, account, err, nil)
	if errors.Is(err, ErrOTPInvalid) {
		return ErrOTPNotFound
	}
	return err
}
