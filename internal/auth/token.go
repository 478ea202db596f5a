package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}

// DevVerifier reads the subject without checking the signature. Only for
// local development against unsigned or self-issued tokens.
type DevVerifier struct{}

func (DevVerifier) Verify(_ context.Context, rawToken string) (Principal, error) {
	return ExtractPrincipalFromJWT(rawToken)
}

// tokenClaims reads roles from a flat "roles" claim or from Keycloak's
// realm_access block.
type tokenClaims struct {
	jwt.RegisteredClaims
	Roles       []string `json:"roles"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func (c *tokenClaims) principal() (Principal, error) {
	if c.Subject == "" {
		return Principal{}, errors.New("subject claim not found in token")
	}
	roles := append([]string{}, c.Roles...)
	roles = append(roles, c.RealmAccess.Roles...)
	return Principal{Subject: c.Subject, Roles: roles}, nil
}

// ExtractPrincipalFromJWT returns the subject and roles of an unverified token.
func ExtractPrincipalFromJWT(tokenString string) (Principal, error) {
	if tokenString == "" {
		return Principal{}, errors.New("empty token")
	}

	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return Principal{}, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims.principal()
}
