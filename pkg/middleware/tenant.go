package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/andobill/pkg/contextkeys"
	"github.com/platinummonkey/andobill/pkg/httputil"
	"github.com/platinummonkey/andobill/pkg/rbac"
	"github.com/platinummonkey/andobill/pkg/session"
	"github.com/platinummonkey/andobill/pkg/tenant"
)

// TenantResolver computes the effective company of a request
type TenantResolver interface {
	EffectiveCompanyID(ctx context.Context, g *rbac.Grants, s tenant.SessionState) (*int64, error)
}

// TenantContext stores the effective company id on the request context. It
// runs after authentication; anonymous requests pass through untouched.
func TenantContext(resolver TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			grants := rbac.FromContext(r.Context())
			if grants == nil {
				next.ServeHTTP(w, r)
				return
			}

			var state tenant.SessionState
			if sess := session.FromContext(r.Context()); sess != nil {
				state = sess
			}
			companyID, err := resolver.EffectiveCompanyID(r.Context(), grants, state)
			if err != nil {
				httputil.WriteInternalError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(contextkeys.WithTenant(r.Context(), companyID)))
		})
	}
}

// RequireTenant rejects requests without an effective company
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contextkeys.GetTenant(r.Context()) == nil {
			httputil.WriteForbidden(w, "no company context")
			return
		}
		next.ServeHTTP(w, r)
	})
}
