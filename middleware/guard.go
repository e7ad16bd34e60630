package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aimbuild/siteauth"
)

// Authorizer is the part of *siteauth.Engine the guard depends on.
type Authorizer interface {
	Authorize(ctx context.Context, accessToken string, allowed ...siteauth.Role) (siteauth.Principal, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by Require.
func PrincipalFromContext(ctx context.Context) (siteauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(siteauth.Principal)
	return p, ok
}

// WithPrincipal stores p in ctx. Handlers under test can use it to skip the
// guard.
func WithPrincipal(ctx context.Context, p siteauth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Require admits requests whose bearer token belongs to a verified, live
// account holding one of roles. An empty roles list admits any role.
func Require(gate Authorizer, roles ...siteauth.Role) func(http.Handler) http.Handler {
	allowed := append([]siteauth.Role(nil), roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate == nil {
				writeError(w, siteauth.ErrEngineNotReady)
				return
			}

			token, _ := bearerToken(r.Header.Get("Authorization"))
			principal, err := gate.Authorize(r.Context(), token, allowed...)
			if err != nil {
				writeError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

type errorBody struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(siteauth.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(errorBody{
		Status:  "error",
		Code:    siteauth.KindOf(err).String(),
		Message: siteauth.PublicMessage(err),
	})
}
