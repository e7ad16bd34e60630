package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aimbuild/siteauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGate struct {
	gotToken string
	gotRoles []siteauth.Role
	err      error
}

func (g *stubGate) Authorize(_ context.Context, token string, allowed ...siteauth.Role) (siteauth.Principal, error) {
	g.gotToken = token
	g.gotRoles = allowed
	if g.err != nil {
		return siteauth.Principal{}, g.err
	}
	return siteauth.Principal{AccountID: "acc-1", Role: siteauth.RoleAdmin}, nil
}

func serve(t *testing.T, h http.Handler, authz string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireStoresPrincipal(t *testing.T) {
	gate := &stubGate{}
	var seen siteauth.Principal
	h := Require(gate, siteauth.RoleAdmin, siteauth.RoleSuperAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = p
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := serve(t, h, "Bearer abc.def.ghi")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "abc.def.ghi", gate.gotToken)
	assert.Equal(t, []siteauth.Role{siteauth.RoleAdmin, siteauth.RoleSuperAdmin}, gate.gotRoles)
	assert.Equal(t, "acc-1", seen.AccountID)
}

func TestRequireRejections(t *testing.T) {
	tests := []struct {
		name       string
		authz      string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing header", "", siteauth.ErrMissingToken, http.StatusUnauthorized, "unauthorized"},
		{"bad token", "Bearer nope", siteauth.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
		{"wrong role", "Bearer ok", siteauth.ErrForbiddenRole, http.StatusForbidden, "forbidden"},
		{"deleted account", "Bearer ok", siteauth.ErrAccountNotFound, http.StatusNotFound, "not_found"},
		{"unverified", "Bearer ok", siteauth.ErrAccountUnverified, http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gate := &stubGate{err: tc.err}
			h := Require(gate)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler must not run")
			}))

			rec := serve(t, h, tc.authz)

			assert.Equal(t, tc.wantStatus, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, tc.wantCode, body.Code)
			assert.Equal(t, siteauth.PublicMessage(tc.err), body.Message)
		})
	}
}

func TestRequireNilGate(t *testing.T) {
	h := Require(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := serve(t, h, "Bearer x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("bearer   abc ")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	for _, v := range []string{"", "Bearer", "Bearer   ", "Basic abc", "Token abc"} {
		_, ok := bearerToken(v)
		assert.False(t, ok, v)
	}
}
