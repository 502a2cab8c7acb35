package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/payscope/payscope/pkg/api"
	"github.com/payscope/payscope/pkg/identity"
)

// JWTValidator validates JWT tokens and extracts claims.
type JWTValidator struct {
	KeySet identity.KeySet
}

// Role enumerates the roles a PayScope token can carry.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleBankAdmin Role = "BANK_ADMIN"
	RoleAnalyst   Role = "ANALYST"
	RoleAuditor   Role = "AUDITOR"
	RoleSystem    Role = "SYSTEM"
)

// Claims are the JWT claims PayScope issues and verifies: subject, a single
// role, and the bank a token is bound to.
type Claims struct {
	jwt.RegisteredClaims
	Role   Role   `json:"role"`
	BankID string `json:"bank_id"`
}

// NewJWTValidator creates a validator with the given KeySet.
func NewJWTValidator(ks identity.KeySet) *JWTValidator {
	if ks == nil {
		return nil
	}
	return &JWTValidator{KeySet: ks}
}

// Validate parses and validates a JWT token string.
func (v *JWTValidator) Validate(tokenStr string) (*Claims, error) {
	if v.KeySet == nil {
		return nil, fmt.Errorf("validator uninitialized")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.KeySet.KeyFunc())
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// publicPaths are endpoints that do not require authentication.
var publicPaths = []string{
	"/health",
	"/health/live",
	"/health/ready",
	"/metrics",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// NewMiddleware builds the JWT + tenant-binding middleware used on every
// non-public route. It is fail-closed: a nil validator rejects every
// request rather than letting traffic through unauthenticated, and a
// mismatch between the token's bank_id and the X-Bank-Id header is
// rejected before any handler runs.
func NewMiddleware(validator *JWTValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteUnauthorized(w, "missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				api.WriteUnauthorized(w, "invalid Authorization header format (expected 'Bearer <token>')")
				return
			}

			if validator == nil {
				api.WriteUnauthorized(w, "authentication not configured")
				return
			}

			claims, err := validator.Validate(parts[1])
			if err != nil {
				api.WriteUnauthorized(w, "invalid or expired token")
				return
			}
			if claims.Subject == "" {
				api.WriteUnauthorized(w, "token subject is required")
				return
			}
			if claims.BankID == "" {
				api.WriteUnauthorized(w, "token bank binding is required")
				return
			}

			headerBankID := r.Header.Get("X-Bank-Id")
			if headerBankID == "" {
				api.WriteForbidden(w, "X-Bank-Id header is required")
				return
			}
			if headerBankID != claims.BankID {
				api.WriteForbidden(w, "X-Bank-Id does not match token bank binding")
				return
			}

			principal := &BasePrincipal{
				ID:       claims.Subject,
				TenantID: claims.BankID,
				Roles:    []string{string(claims.Role)},
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route to principals carrying one of allowed. It must
// sit behind NewMiddleware so a Principal is already attached to the
// context; a missing principal is treated as unauthorized rather than
// forbidden, since it means the auth chain was wired wrong, not that the
// caller lacks permission.
func RequireRole(allowed ...Role) func(http.Handler) http.Handler {
	permitted := make(map[string]bool, len(allowed))
	for _, r := range allowed {
		permitted[string(r)] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := GetPrincipal(r.Context())
			if err != nil {
				api.WriteUnauthorized(w, "authentication required")
				return
			}
			for _, role := range principal.GetRoles() {
				if permitted[role] {
					next.ServeHTTP(w, r)
					return
				}
			}
			api.WriteForbidden(w, "insufficient role for this endpoint")
		})
	}
}
