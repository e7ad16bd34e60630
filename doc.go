// Package siteauth is the identity and session core of the site management
// backend: registration with email verification, password login with
// brute-force lockout, OTP driven verification and reset flows, and
// purpose-scoped bearer tokens with refresh rotation.
//
// Build an Engine with New().WithRedis(...).WithAccountStore(...).
// WithCompanyDirectory(...).WithNotifier(...).Build(). Redis holds OTP
// records, the refresh revocation list and the throttles; accounts live in
// the AccountStore (see storage/postgres).
//
// Every failure is an *Error carrying a Kind. Use errors.Is against the kind
// sentinels (ErrUnauthorized, ErrLocked, ...) and HTTPStatus to map it.
package siteauth
