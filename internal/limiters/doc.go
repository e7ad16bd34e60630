// Package limiters holds the brute-force policies of the auth engine.
//
//   - [LockoutPolicy] is the pure per-account lockout decision. It performs no
//     I/O; credential stores apply it atomically.
//   - [OTPRequestLimiter] is a Redis fixed-window throttle on OTP re-issue per
//     email and per client IP.
//
// OTPRequestLimiter is nil-safe: calling Allow on a nil receiver returns nil.
package limiters
