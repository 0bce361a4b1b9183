package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/httputil"
	"github.com/platinummonkey/andobill/pkg/i18n"
	"github.com/platinummonkey/andobill/pkg/session"
	"github.com/platinummonkey/andobill/pkg/throttle"
)

// Paths the login handlers redirect to
const (
	HomePath  = "/dashboard"
	LoginPath = "/login"
)

// SessionBinder attaches and detaches users on the request session
type SessionBinder interface {
	Login(ctx context.Context, s *session.Session, userID int64, ip, userAgent string) error
	Invalidate(ctx context.Context, s *session.Session) error
}

// Handlers provides the login and logout endpoints
type Handlers struct {
	auth     *Authenticator
	sessions SessionBinder
}

// NewHandlers creates auth handlers
func NewHandlers(auth *Authenticator, sessions SessionBinder) *Handlers {
	return &Handlers{auth: auth, sessions: sessions}
}

// RegisterRoutes registers the auth routes. The router must run the session
// middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	router.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
}

type loginResponse struct {
	User     *User  `json:"user"`
	Redirect string `json:"redirect"`
}

// Login authenticates the submitted credentials and binds the user to a
// regenerated session
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	if sess == nil {
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	var creds Credentials
	if !httputil.ParseJSONOrError(w, r, &creds) {
		return
	}
	if !httputil.RequireNonEmpty(w, creds.Email, "email") || !httputil.RequireNonEmpty(w, creds.Password, "password") {
		return
	}
	creds.IPAddress = httputil.ClientIP(r)
	creds.UserAgent = r.UserAgent()

	user, err := h.auth.Attempt(ctx, creds)
	if err != nil {
		writeLoginError(ctx, w, err)
		return
	}

	if err := h.sessions.Login(ctx, sess, user.ID, creds.IPAddress, creds.UserAgent); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loginResponse{User: user, Redirect: HomePath})
}

// Logout destroys the session
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	if sess == nil {
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	if sess.IsAuthenticated() {
		_ = audit.FromContext(ctx).LogAuthentication(ctx, audit.EventTypeAuthLogout, sess.UserID, "",
			audit.EventStatusSuccess, "logged out")
	}
	if err := h.sessions.Invalidate(ctx, sess); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	sess.SetFlash("status", i18n.T(ctx, i18n.MsgLoggedOut))

	if httputil.WantsJSON(r) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"redirect": LoginPath})
		return
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

func writeLoginError(ctx context.Context, w http.ResponseWriter, err error) {
	var rl *throttle.RateLimitedError
	switch {
	case errors.As(err, &rl):
		httputil.WriteTooManyRequests(w, rl.RetryAfter, i18n.T(ctx, i18n.MsgTooManyAttempts, rl.RetryAfterSeconds()))
	case errors.Is(err, ErrAccountInactive):
		writeFieldError(w, "account_inactive", i18n.T(ctx, i18n.MsgAccountInactive))
	case errors.Is(err, ErrCompanyInactive):
		writeFieldError(w, "company_inactive", i18n.T(ctx, i18n.MsgCompanyInactive))
	case errors.Is(err, ErrInvalidCredentials):
		writeFieldError(w, "invalid_credentials", i18n.T(ctx, i18n.MsgInvalidCredentials))
	default:
		httputil.WriteInternalError(w, err)
	}
}

func writeFieldError(w http.ResponseWriter, code, message string) {
	httputil.WriteDetailedError(w, http.StatusUnprocessableEntity, code, message, map[string]string{"email": message})
}
