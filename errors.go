package siteauth

import (
	"errors"
	"net/http"
)

// Kind classifies an authentication failure. The HTTP layer maps each kind to
// one status code; callers branch on kinds with errors.Is against the kind
// sentinels below.
type Kind uint8

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindLocked
	KindTooManyRequests
	KindUnavailable
)

// String returns the wire code used in error envelopes.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindLocked:
		return "locked"
	case KindTooManyRequests:
		return "too_many_requests"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is a typed authentication failure. Message is short and safe to show
// to the caller.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is the kind sentinel for e, so that
// errors.Is(ErrInvalidCredentials, ErrUnauthorized) holds.
func (e *Error) Is(target error) bool {
	t, ok := target.(*kindError)
	return ok && t.kind == e.Kind
}

type kindError struct {
	kind Kind
}

func (k *kindError) Error() string {
	return k.kind.String()
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Kind sentinels.
var (
	ErrBadRequest      error = &kindError{kind: KindBadRequest}
	ErrUnauthorized    error = &kindError{kind: KindUnauthorized}
	ErrForbidden       error = &kindError{kind: KindForbidden}
	ErrNotFound        error = &kindError{kind: KindNotFound}
	ErrConflict        error = &kindError{kind: KindConflict}
	ErrLocked          error = &kindError{kind: KindLocked}
	ErrTooManyRequests error = &kindError{kind: KindTooManyRequests}
	ErrUnavailable     error = &kindError{kind: KindUnavailable}
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = newError(KindUnauthorized, "invalid credentials")
	// ErrInvalidToken is returned for malformed, tampered, expired or wrong-purpose tokens.
	ErrInvalidToken = newError(KindUnauthorized, "invalid or expired token")
	// ErrTokenRevoked is returned for refresh tokens that were logged out or already rotated.
	ErrTokenRevoked = newError(KindUnauthorized, "token has been revoked")
	// ErrMissingToken is returned by the authorization gate when no bearer token is present.
	ErrMissingToken = newError(KindUnauthorized, "you are not authorized")
	// ErrCurrentPasswordMismatch is returned by ChangePassword.
	ErrCurrentPasswordMismatch = newError(KindUnauthorized, "password is incorrect")

	ErrAccountNotFound = newError(KindNotFound, "user not found")
	ErrOTPNotFound     = newError(KindNotFound, "otp not found or expired")

	ErrAccountUnverified    = newError(KindBadRequest, "user not verified, please verify your email")
	ErrAccountDeleted       = newError(KindBadRequest, "your account has been deleted, please contact support")
	ErrInvalidEmail         = newError(KindBadRequest, "email is not valid")
	ErrInvalidRole          = newError(KindBadRequest, "role is not valid")
	ErrCompanyNotFound      = newError(KindBadRequest, "company is not valid")
	ErrManagerRequired      = newError(KindBadRequest, "supervisor manager id is required")
	ErrNoCompanyLink        = newError(KindBadRequest, "inviting manager is not associated with a company")
	ErrNoResetInProgress    = newError(KindBadRequest, "no password reset in progress")
	ErrPasswordNotTemporary = newError(KindBadRequest, "password has already been set")
	ErrPasswordPolicy       = newError(KindBadRequest, "password does not meet the policy")
	ErrPasswordReuse        = newError(KindBadRequest, "new password must be different from current password")
	ErrOTPInvalid           = newError(KindBadRequest, "otp is not valid")

	ErrForbiddenRole = newError(KindForbidden, "you don't have permission to access this resource")

	ErrEmailTaken = newError(KindConflict, "email already taken")

	// ErrLockoutTriggered is returned by the login attempt that crosses the
	// failure threshold.
	ErrLockoutTriggered = newError(KindLocked, "account locked due to too many failed attempts")
	// ErrAccountLocked is returned while a lockout window is active.
	ErrAccountLocked = newError(KindTooManyRequests, "account is locked, try again later")

	ErrLoginRateLimited = newError(KindTooManyRequests, "too many login attempts")
	ErrOTPRateLimited   = newError(KindTooManyRequests, "too many otp requests, try again later")

	ErrStoreUnavailable      = newError(KindUnavailable, "account store unavailable")
	ErrOTPUnavailable        = newError(KindUnavailable, "otp backend unavailable")
	ErrRevocationUnavailable = newError(KindUnavailable, "revocation backend unavailable")
	ErrRateLimitUnavailable  = newError(KindUnavailable, "rate limit backend unavailable")
	ErrNotificationFailed    = newError(KindUnavailable, "email delivery failed")
	ErrEngineNotReady        = newError(KindInternal, "engine not initialized")
)

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k *kindError
	if errors.As(err, &k) {
		return k.kind
	}
	return KindInternal
}

// HTTPStatus maps err to the status code the HTTP layer should answer with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindLocked:
		return http.StatusLocked
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns a message that is safe to show to the caller.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "something went wrong"
}
