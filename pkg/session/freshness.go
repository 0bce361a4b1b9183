package session

import (
	"net/http"
	"net/url"
	"time"

	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/httputil"
	"github.com/platinummonkey/andobill/pkg/i18n"
	"github.com/platinummonkey/andobill/pkg/observability"
)

// State is the freshness of an authenticated session
type State int

const (
	// StateFresh has no activity marker yet
	StateFresh State = iota
	// StateActive was used within the idle timeout
	StateActive
	// StateExpired has been idle for longer than the timeout
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

// StatusSessionExpired is the login page status after an idle logout
const StatusSessionExpired = "session_expired"

// Freshness logs out sessions that have been idle for too long
type Freshness struct {
	timeout   time.Duration
	manager   *Manager
	loginPath string
	logger    *observability.Logger
	metrics   *observability.Metrics
	exempt    map[string]bool
	now       func() time.Time
}

// NewFreshness creates the idle guard; logger and metrics may be nil
func NewFreshness(timeout time.Duration, manager *Manager, loginPath string, logger *observability.Logger, metrics *observability.Metrics) *Freshness {
	if loginPath == "" {
		loginPath = "/login"
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Freshness{
		timeout:   timeout,
		manager:   manager,
		loginPath: loginPath,
		logger:    logger.WithField("component", "session_freshness"),
		metrics:   metrics,
		exempt:    map[string]bool{loginPath: true},
		now:       time.Now,
	}
}

// Exempt skips the guard for requests to path. The login page is always
// exempt.
func (f *Freshness) Exempt(path string) {
	f.exempt[path] = true
}

// Evaluate classifies s at now. Exactly timeout of idleness is still active.
func (f *Freshness) Evaluate(s *Session, now time.Time) State {
	if s.LastActivity.IsZero() {
		return StateFresh
	}
	if now.Sub(s.LastActivity) > f.timeout {
		return StateExpired
	}
	return StateActive
}

// LoginURL is where expired sessions are sent
func (f *Freshness) LoginURL() string {
	return f.loginPath + "?" + url.Values{"status": {StatusSessionExpired}}.Encode()
}

// Middleware must run after Manager.Middleware. Anonymous requests and
// exempt paths pass through untouched, so a login submitted from an idle
// session is still attempted.
func (f *Freshness) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		if !s.IsAuthenticated() || f.exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		now := f.now().UTC()
		if f.Evaluate(s, now) == StateExpired {
			f.expire(w, r, s, now)
			return
		}

		if ip := httputil.ClientIP(r); s.LoginIP != "" && ip != s.LoginIP {
			f.metrics.RecordAddressMismatch()
			f.logger.WithFields(map[string]interface{}{
				"user_id":  *s.UserID,
				"login_ip": s.LoginIP,
				"ip":       ip,
			}).Warn("session used from a different address")
		}

		s.Touch(now)
		next.ServeHTTP(w, r)
	})
}

func (f *Freshness) expire(w http.ResponseWriter, r *http.Request, s *Session, now time.Time) {
	ctx := r.Context()
	uid := *s.UserID
	idle := now.Sub(s.LastActivity)

	_ = audit.FromContext(ctx).LogAuthentication(ctx, audit.EventTypeAuthSessionExpired, &uid, "",
		audit.EventStatusSuccess, "session expired after "+idle.Round(time.Second).String()+" of inactivity")
	f.metrics.RecordSessionExpired()
	f.logger.WithFields(map[string]interface{}{
		"user_id": uid,
		"idle":    idle.String(),
	}).Info("session expired")

	if err := f.manager.Invalidate(ctx, s); err != nil {
		f.logger.WithError(err).Error("failed to invalidate expired session")
	}
	msg := i18n.T(ctx, i18n.MsgSessionExpired)
	s.SetFlash("status", msg)

	if httputil.WantsJSON(r) {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
			Error:    StatusSessionExpired,
			Message:  msg,
			Redirect: f.LoginURL(),
		})
		return
	}
	http.Redirect(w, r, f.LoginURL(), http.StatusSeeOther)
}
