// Package internal holds helpers private to siteauth: secure generation of
// one-time codes and temporary passwords.
//
// Sub-packages:
//
//   - audit: async event dispatch and sinks
//   - config: server configuration loading
//   - httpapi: HTTP routes over the engine
//   - limiters: lockout policy and OTP request throttle
//   - logging: zap logger construction
//   - rate: per-IP login throttle
//   - stores: Redis OTP records and the token denylist
package internal
