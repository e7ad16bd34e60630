// Package jwt mints and verifies purpose-scoped bearer tokens. Every purpose
// (access, refresh, verify-email, reset-password) carries its own signing key
// and lifetime, and Parse rejects a token whose typ claim names a different
// purpose before any signature work is done.
package jwt
