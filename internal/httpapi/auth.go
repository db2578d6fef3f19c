package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrymomot/credvault/pkg/jwt"
)

// Role distinguishes a regular tenant caller from an administrator, who
// waives tenant-equality checks on every endpoint.
type Role string

const (
	RoleTenant Role = "tenant"
	RoleAdmin  Role = "admin"
)

// Claims is the payload carried by the service's own bearer tokens.
type Claims struct {
	jwt.StandardClaims
	TenantID string `json:"tenant_id"`
	Role     Role   `json:"role"`
}

type principalContextKey struct{}

// Principal is the authenticated caller attached to the request context by
// RequireAuth.
type Principal struct {
	TenantID string
	Role     Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// PrincipalFromContext extracts the Principal set by RequireAuth.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// RequireAuth parses the Authorization bearer token with the service's HMAC
// JWT, rejecting missing/invalid/expired tokens with 401, and attaches the
// resulting Principal to the request context.
func RequireAuth(tokens *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token")
				return
			}

			var claims Claims
			if err := tokens.Parse(token, &claims); err != nil {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid or expired token")
				return
			}
			if claims.TenantID == "" {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "token carries no tenant_id")
				return
			}
			if claims.Role == "" {
				claims.Role = RoleTenant
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, Principal{
				TenantID: claims.TenantID,
				Role:     claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveTenant returns the tenant id a handler should scope the operation
// to: the principal's own tenant, or the one a query/body parameter names
// when the caller is an administrator.
func resolveTenant(p Principal, requested string) (tenantID string, crossTenant bool) {
	if p.IsAdmin() {
		if requested != "" {
			return requested, false
		}
		return p.TenantID, false
	}
	if requested != "" && requested != p.TenantID {
		return "", true
	}
	return p.TenantID, false
}
