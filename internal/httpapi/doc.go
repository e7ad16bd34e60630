// Package httpapi exposes the engine over HTTP: a chi router with CORS,
// request ids, access logging and the JSON envelope the mobile and web
// clients expect.
package httpapi
