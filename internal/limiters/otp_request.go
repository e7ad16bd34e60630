package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOTPRequestRateLimited   = errors.New("otp request rate limited")
	ErrOTPRequestLimiterFailed = errors.New("otp request limiter unavailable")
)

// OTPRequestConfig bounds how many OTPs may be issued per window.
type OTPRequestConfig struct {
	MaxRequests      int
	Window           time.Duration
	EnableIPThrottle bool
}

// OTPRequestLimiter throttles OTP issuance per email and, optionally, per
// client IP using Redis fixed windows.
type OTPRequestLimiter struct {
	redis  redis.UniversalClient
	config OTPRequestConfig
}

func NewOTPRequestLimiter(redisClient redis.UniversalClient, cfg OTPRequestConfig) *OTPRequestLimiter {
	return &OTPRequestLimiter{redis: redisClient, config: cfg}
}

// Allow counts one OTP request for email (and ip when set) and fails with
// ErrOTPRequestRateLimited once the window budget is spent.
func (l *OTPRequestLimiter) Allow(ctx context.Context, email, ip string) error {
	if l == nil || l.config.MaxRequests <= 0 {
		return nil
	}
	if err := l.enforceFixedWindow(ctx, otpRequestEmailKey(email)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, otpRequestIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// Reset drops the per-email window, e.g. after the flow completes.
func (l *OTPRequestLimiter) Reset(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, otpRequestEmailKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRequestLimiterFailed, err)
	}
	return nil
}

func (l *OTPRequestLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRequestLimiterFailed, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrOTPRequestLimiterFailed, err)
		}
	}

	if count > int64(l.config.MaxRequests) {
		return ErrOTPRequestRateLimited
	}
	return nil
}

func otpRequestEmailKey(email string) string {
	return "sa:otpreq:e:" + strings.ToLower(email)
}

func otpRequestIPKey(ip string) string {
	return "sa:otpreq:ip:" + ip
}
