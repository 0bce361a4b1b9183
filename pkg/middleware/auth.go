package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/httputil"
	"github.com/platinummonkey/andobill/pkg/rbac"
	"github.com/platinummonkey/andobill/pkg/session"
)

// GrantsLoader resolves the permission snapshot for a user, memoized on the
// returned context
type GrantsLoader interface {
	ForRequest(ctx context.Context, userID int64) (context.Context, *rbac.Grants, error)
}

// SessionInvalidator destroys a session
type SessionInvalidator interface {
	Invalidate(ctx context.Context, s *session.Session) error
}

// AuthMiddleware turns the session user into request-scoped grants
type AuthMiddleware struct {
	grants    GrantsLoader
	sessions  SessionInvalidator
	loginPath string
	optional  bool // If true, allow requests without a user
}

// NewAuthMiddleware creates the authentication middleware
func NewAuthMiddleware(grants GrantsLoader, sessions SessionInvalidator, loginPath string, optional bool) *AuthMiddleware {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &AuthMiddleware{grants: grants, sessions: sessions, loginPath: loginPath, optional: optional}
}

// Handler loads the grants of the session user and records the audit actor.
// Sessions whose user is gone or deactivated are destroyed.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess := session.FromContext(ctx)
		if sess == nil || !sess.IsAuthenticated() {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorized(w, r)
			return
		}

		ctx, grants, err := m.grants.ForRequest(ctx, *sess.UserID)
		if errors.Is(err, rbac.ErrUserNotFound) || (err == nil && !grants.Principal().IsActive()) {
			if err := m.sessions.Invalidate(ctx, sess); err != nil {
				httputil.WriteInternalError(w, err)
				return
			}
			m.unauthorized(w, r)
			return
		}
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}

		p := grants.Principal()
		ctx = audit.WithActor(ctx, audit.Actor{UserID: p.ID, Username: p.Email, CompanyID: p.CompanyID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) unauthorized(w http.ResponseWriter, r *http.Request) {
	if httputil.WantsJSON(r) {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
			Error:    "unauthenticated",
			Redirect: m.loginPath,
		})
		return
	}
	http.Redirect(w, r, m.loginPath, http.StatusSeeOther)
}
