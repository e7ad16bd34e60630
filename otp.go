package siteauth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/aimbuild/siteauth/internal"
	"github.com/aimbuild/siteauth/internal/limiters"
	"github.com/aimbuild/siteauth/internal/stores"
)

// otpPurpose scopes a code. A code issued for one purpose never satisfies
// another.
type otpPurpose string

const (
	otpVerifyEmail   otpPurpose = "verify"
	otpResetPassword otpPurpose = "reset"
)

// otpIssuer stores only the SHA-256 of each code.
type otpIssuer struct {
	store       *stores.OTPStore
	requests    *limiters.OTPRequestLimiter
	digits      int
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

type issuedOTP struct {
	Code      string
	ExpiresAt time.Time
}

func hashOTP(purpose otpPurpose, email, code string) [32]byte {
	return sha256.Sum256([]byte(string(purpose) + "|" + email + "|" + code))
}

// issue replaces any live code for (purpose, email).
func (o *otpIssuer) issue(ctx context.Context, purpose otpPurpose, email string) (issuedOTP, error) {
	if err := o.requests.Allow(ctx, email, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, limiters.ErrOTPRequestRateLimited) {
			return issuedOTP{}, ErrOTPRateLimited
		}
		return issuedOTP{}, fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	code, err := internal.NewOTP(o.digits)
	if err != nil {
		return issuedOTP{}, err
	}
	now := o.now()
	if err := o.store.Save(ctx, string(purpose), email, hashOTP(purpose, email, code), o.ttl, now); err != nil {
		return issuedOTP{}, fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
	return issuedOTP{Code: code, ExpiresAt: now.Add(o.ttl)}, nil
}

// verify consumes the code. Exactly one concurrent caller can succeed.
func (o *otpIssuer) verify(ctx context.Context, purpose otpPurpose, email, code string) error {
	if !o.wellFormed(code) {
		return ErrOTPInvalid
	}
	return otpErr(o.store.Consume(ctx, string(purpose), email, hashOTP(purpose, email, code), o.maxAttempts, o.now()))
}

// check validates the code without consuming it. Wrong guesses still count
// towards the attempt limit.
func (o *otpIssuer) check(ctx context.Context, purpose otpPurpose, email, code string) error {
	if !o.wellFormed(code) {
		return ErrOTPInvalid
	}
	return otpErr(o.store.Check(ctx, string(purpose), email, hashOTP(purpose, email, code), o.maxAttempts, o.now()))
}

func (o *otpIssuer) discard(ctx context.Context, purpose otpPurpose, email string) {
	_ = o.store.Delete(ctx, string(purpose), email)
	_ = o.requests.Reset(ctx, email)
}

func (o *otpIssuer) wellFormed(code string) bool {
	if len(code) != o.digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// otpErr folds a wrong code into ErrOTPNotFound: for the caller there is no
// matching live code either way.
func otpErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrOTPNotFound),
		errors.Is(err, stores.ErrOTPMismatch),
		errors.Is(err, stores.ErrOTPAttemptsExceeded):
		return ErrOTPNotFound
	default:
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
}
