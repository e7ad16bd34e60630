package siteauth

import (
	"context"
	"errors"

	internalaudit "github.com/aimbuild/siteauth/internal/audit"
)

const (
	auditEventRegister             = "register"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLockout              = "lockout"
	auditEventVerifyEmail          = "verify_email"
	auditEventOTPResend            = "otp_resend"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordReset        = "password_reset"
	auditEventPasswordChange       = "password_change"
	auditEventInitialPasswordSet   = "initial_password_set"
	auditEventLogout               = "logout"
	auditEventRefresh              = "refresh"
	auditEventRefreshReuse         = "refresh_reuse"
	auditEventSupervisorInvite     = "supervisor_invite"
	auditEventStaffCreate          = "staff_create"
	auditEventAuthorizeDenied      = "authorize_denied"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	account *Account,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := internalaudit.Event{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		IP:        clientIPFromContext(ctx),
		RequestID: requestIDFromContext(ctx),
		Success:   success,
	}
	if account != nil {
		event.UserID = account.ID
		event.Role = string(account.Role)
	}
	if err != nil {
		event.Error = auditErrorCode(err)
	}
	if metadataBuilder != nil {
		event.Metadata = metadataBuilder()
	}

	e.audit.Emit(ctx, event)
}

// auditErrorCode is the kind code, refined for the failures worth telling
// apart in an audit trail.
func auditErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrLockoutTriggered):
		return "lockout_triggered"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrAccountUnverified):
		return "account_unverified"
	case errors.Is(err, ErrAccountDeleted):
		return "account_deleted"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrOTPInvalid), errors.Is(err, ErrOTPNotFound):
		return "otp_invalid"
	case errors.Is(err, ErrPasswordReuse):
		return "password_reuse"
	}
	return KindOf(err).String()
}
