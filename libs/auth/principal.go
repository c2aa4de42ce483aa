package auth

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleCustomer = "customer"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID     string
	Role       string
	CustomerID string
}

// IsStaff reports whether the caller acts on behalf of the business.
func (p Principal) IsStaff() bool {
	return p.Role == RoleStaff || p.Role == RoleAdmin
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// RequireAuth verifies the bearer token and stores the caller principal in the
// request context.
func RequireAuth(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
			writeAuthError(w, http.StatusUnauthorized, "token ausente ou inválido")
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := ParseAndVerifyHS256(token, secret, time.Now())
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "token inválido")
			return
		}

		p := Principal{UserID: claims.Sub, Role: claims.Role, CustomerID: claims.CustomerID}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireStaff rejects callers that are not staff members.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok || !p.IsStaff() {
			writeAuthError(w, http.StatusForbidden, "acesso restrito à equipe")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
