// Package middleware adapts the engine's authorization gate to net/http.
//
// [Require] reads the bearer token from the Authorization header, asks the
// engine to authorize it against a role set and stores the resulting
// principal in the request context. Rejections are written as the JSON error
// envelope used by the HTTP API, with the status taken from siteauth.HTTPStatus.
//
// The package holds no authentication logic of its own. Token parsing,
// account reload and role checks all happen in Engine.Authorize.
package middleware
