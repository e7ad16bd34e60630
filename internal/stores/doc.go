// Package stores provides the short-lived Redis records of the auth engine:
// one-time codes scoped by (purpose, email) and the denylist of revoked token
// ids.
//
// OTP records are Redis hashes holding a SHA-256 of the code, an absolute
// expiry and a failed-attempt counter, with a matching PX TTL. Verification
// runs in one Lua script so that two concurrent calls with the same code
// cannot both succeed. The script compares hex digests; the final comparison
// is repeated in Go with subtle.ConstantTimeCompare.
//
// This package does not generate codes or decide what a failure means for
// the caller. It never sees plaintext codes.
package stores
