package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-qrinventory/internal/apperr"
	"ms-qrinventory/internal/config"
	"ms-qrinventory/internal/logger"
	"ms-qrinventory/internal/utils"

	"github.com/coreos/go-oidc/v3/oidc"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the verified caller of a request.
type Principal struct {
	Subject string
	Roles   []string
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Verifier turns a raw bearer token into the calling principal.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Principal, error)
}

// OIDCVerifier checks signature and expiry against the issuer's keys.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	if issuer == "" {
		return nil, fmt.Errorf("OIDC_ISSUER is not set")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	// access tokens carry no client audience
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true})}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (Principal, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Principal{}, err
	}
	var claims tokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return Principal{}, fmt.Errorf("failed to parse claims: %w", err)
	}
	return claims.principal()
}

// NewVerifier picks the dev-mode decoder or the OIDC verifier.
func NewVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) (Verifier, error) {
	if cfg.DevMode {
		log.LogSecurity("DEV_MODE", "bearer tokens are decoded without signature checks")
		return DevVerifier{}, nil
	}
	return NewOIDCVerifier(ctx, cfg.Issuer)
}

func Middleware(v Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}
			p, err := v.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("INVALID_TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole lets the request through only when the principal set by
// Middleware carries role.
func RequireRole(role string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFrom(r.Context())
			if !p.HasRole(role) {
				log.LogSecurity("ROLE_REQUIRED", fmt.Sprintf("%s %s by %q needs %s", r.Method, r.URL.Path, p.Subject, role))
				forbidden(w, fmt.Sprintf("role %s required", role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return WithPrincipal(ctx, Principal{Subject: userID})
}

func PrincipalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey).(Principal)
	return p
}

// UserID is the authenticated subject, or "" outside the middleware.
func UserID(ctx context.Context) string {
	return PrincipalFrom(ctx).Subject
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	meta := apperr.MetadataFor(apperr.CodeUnauthenticated)
	json.NewEncoder(w).Encode(utils.TypedErrorResponse(meta.PublicMessage, detail,
		string(apperr.CodeUnauthenticated), "", nil))
}

func forbidden(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	meta := apperr.MetadataFor(apperr.CodeForbidden)
	json.NewEncoder(w).Encode(utils.TypedErrorResponse(meta.PublicMessage, detail,
		string(apperr.CodeForbidden), string(apperr.ReasonRoleRequired), nil))
}
