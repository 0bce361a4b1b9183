package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/andobill/pkg/observability"
)

// Options configures the session cookie
type Options struct {
	CookieName string
	Lifetime   time.Duration
	Secure     bool
}

// Manager binds sessions to requests through a cookie
type Manager struct {
	store  Store
	opts   Options
	logger *observability.Logger
	now    func() time.Time
}

// NewManager creates a session manager; logger may be nil
func NewManager(store Store, opts Options, logger *observability.Logger) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "andobill_session"
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = 12 * time.Hour
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Manager{store: store, opts: opts, logger: logger.WithField("component", "session"), now: time.Now}
}

func (m *Manager) newSession() *Session {
	return &Session{ID: uuid.NewString(), CreatedAt: m.now().UTC()}
}

// Load returns the session named by the request cookie, or a new one. New
// sessions are only stored once something is written to them.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.opts.CookieName)
	if err != nil || c.Value == "" {
		return m.newSession(), nil
	}
	s, err := m.store.Get(ctx, c.Value)
	if errors.Is(err, ErrNotFound) {
		return m.newSession(), nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Regenerate moves the session to a new id and drops the old one
func (m *Manager) Regenerate(ctx context.Context, s *Session) error {
	if err := m.store.Delete(ctx, s.ID); err != nil {
		return err
	}
	s.ID = uuid.NewString()
	s.dirty = true
	return nil
}

// Login attaches a user to the session under a fresh id and stamps the
// login markers
func (m *Manager) Login(ctx context.Context, s *Session, userID int64, ip, userAgent string) error {
	if err := m.Regenerate(ctx, s); err != nil {
		return err
	}
	id := userID
	s.UserID = &id
	s.LoginIP = ip
	s.LoginUserAgent = userAgent
	s.SelectedCompany = nil
	s.Touch(m.now().UTC())
	return nil
}

// Invalidate deletes the session and turns s into an empty session with a
// new id
func (m *Manager) Invalidate(ctx context.Context, s *Session) error {
	if err := m.store.Delete(ctx, s.ID); err != nil {
		return err
	}
	*s = *m.newSession()
	return nil
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.opts.Lifetime / time.Second),
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware loads the session into the request context. Changed sessions
// are saved, and the cookie rewritten when the id changed, before the
// response headers go out.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Load(r.Context(), r)
		if err != nil {
			m.logger.WithError(err).Error("failed to load session")
			s = m.newSession()
		}

		cookieID := ""
		if c, err := r.Cookie(m.opts.CookieName); err == nil {
			cookieID = c.Value
		}

		sw := &sessionWriter{ResponseWriter: w, manager: m, ctx: r.Context(), session: s, cookieID: cookieID}
		next.ServeHTTP(sw, r.WithContext(WithSession(r.Context(), s)))

		if !sw.committed {
			sw.commit()
		} else if s.dirty {
			m.save(r.Context(), s)
		}
	})
}

func (m *Manager) save(ctx context.Context, s *Session) {
	if err := m.store.Save(ctx, s); err != nil {
		m.logger.WithError(err).Error("failed to save session")
		return
	}
	s.dirty = false
}

type sessionWriter struct {
	http.ResponseWriter
	manager   *Manager
	ctx       context.Context
	session   *Session
	cookieID  string
	committed bool
}

func (w *sessionWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	if !w.session.dirty {
		// the cookie names a session that no longer exists
		if w.cookieID != "" && w.session.ID != w.cookieID {
			w.manager.clearCookie(w.ResponseWriter)
		}
		return
	}
	w.manager.save(w.ctx, w.session)
	if w.session.ID != w.cookieID {
		w.manager.setCookie(w.ResponseWriter, w.session.ID)
	}
}

func (w *sessionWriter) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}
