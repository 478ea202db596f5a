package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ms-qrinventory/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("dev"))
	require.NoError(t, err)
	return token
}

type rejectAll struct{}

func (rejectAll) Verify(context.Context, string) (Principal, error) {
	return Principal{}, errors.New("expired")
}

func TestExtractPrincipalFromJWT(t *testing.T) {
	p, err := ExtractPrincipalFromJWT(signedToken(t, jwt.MapClaims{"sub": "agent-x"}))
	require.NoError(t, err)
	assert.Equal(t, "agent-x", p.Subject)
	assert.Empty(t, p.Roles)

	p, err = ExtractPrincipalFromJWT(signedToken(t, jwt.MapClaims{
		"sub":          "admin-1",
		"roles":        []string{"auditor"},
		"realm_access": map[string]interface{}{"roles": []string{"admin"}},
	}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"auditor", "admin"}, p.Roles)
	assert.True(t, p.HasRole("admin"))
	assert.False(t, p.HasRole("agent"))

	_, err = ExtractPrincipalFromJWT(signedToken(t, jwt.MapClaims{"name": "nobody"}))
	assert.Error(t, err)

	_, err = ExtractPrincipalFromJWT("not.a.jwt")
	assert.Error(t, err)

	_, err = ExtractPrincipalFromJWT("")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	var seen string
	handler := Middleware(DevVerifier{}, logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/bundles", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")

	req = httptest.NewRequest(http.MethodGet, "/api/bundles", nil)
	req.Header.Set("Authorization", "Token abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/bundles", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{"sub": "agent-x"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "agent-x", seen)
}

func TestMiddlewareRejectsUnverifiedToken(t *testing.T) {
	handler := Middleware(rejectAll{}, logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserIDOutsideMiddleware(t *testing.T) {
	assert.Empty(t, UserID(context.Background()))
	assert.Equal(t, "admin", UserID(WithUserID(context.Background(), "admin")))
}

func TestRequireRole(t *testing.T) {
	handler := Middleware(DevVerifier{}, logger.Discard())(
		RequireRole("admin", logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})))

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/T1/decision", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{"sub": "agent-x"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "RoleRequired")

	req = httptest.NewRequest(http.MethodPost, "/api/tickets/T1/decision", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{
		"sub":          "admin-1",
		"realm_access": map[string]interface{}{"roles": []string{"admin"}},
	}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
