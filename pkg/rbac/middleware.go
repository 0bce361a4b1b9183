package rbac

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/httputil"
)

// RequirePermission creates middleware that requires a specific permission
func RequirePermission(permission string) mux.MiddlewareFunc {
	return requireGrant(func(g *Grants) bool { return g.Can(permission) }, "permission "+permission)
}

// RequireAnyPermission creates middleware that requires any of the permissions
func RequireAnyPermission(permissions ...string) mux.MiddlewareFunc {
	return requireGrant(func(g *Grants) bool {
		for _, p := range permissions {
			if g.Can(p) {
				return true
			}
		}
		return false
	}, "any of "+strings.Join(permissions, ", "))
}

// RequireRole creates middleware that requires a role. Tenant-unscoped
// principals pass every role gate.
func RequireRole(role string) mux.MiddlewareFunc {
	return requireGrant(func(g *Grants) bool { return g.Unscoped() || g.Is(role) }, "role "+role)
}

func requireGrant(allowed func(g *Grants) bool, what string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g := FromContext(r.Context())
			if g == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if !allowed(g) {
				_ = audit.LogDenied(r.Context(), audit.ResourceTypePermission, r.URL.Path, "missing "+what)
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
