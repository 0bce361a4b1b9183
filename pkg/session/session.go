package session

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/andobill/pkg/contextkeys"
)

// ErrNotFound is returned when a session id is unknown or expired
var ErrNotFound = errors.New("session not found")

// Session is the server-side state behind a session cookie
type Session struct {
	ID              string            `json:"id"`
	UserID          *int64            `json:"user_id,omitempty"`
	LastActivity    time.Time         `json:"last_activity,omitempty"`
	LoginIP         string            `json:"login_ip,omitempty"`
	LoginUserAgent  string            `json:"login_user_agent,omitempty"`
	SelectedCompany *int64            `json:"selected_company,omitempty"`
	Flash           map[string]string `json:"flash,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`

	dirty     bool
	destroyed bool
}

// IsAuthenticated reports whether a user is logged in on this session
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.UserID != nil
}

// SelectedCompanyID returns the company override chosen by an unscoped user
func (s *Session) SelectedCompanyID() *int64 {
	return s.SelectedCompany
}

// SetSelectedCompanyID sets or, with nil, clears the company override
func (s *Session) SetSelectedCompanyID(id *int64) {
	if id == nil {
		s.SelectedCompany = nil
	} else {
		v := *id
		s.SelectedCompany = &v
	}
	s.dirty = true
}

// Touch sets the last activity marker
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now
	s.dirty = true
}

// SetFlash stores a one-shot message for the next request
func (s *Session) SetFlash(key, message string) {
	if s.Flash == nil {
		s.Flash = make(map[string]string)
	}
	s.Flash[key] = message
	s.dirty = true
}

// PopFlash returns and removes a flash message
func (s *Session) PopFlash(key string) (string, bool) {
	msg, ok := s.Flash[key]
	if ok {
		delete(s.Flash, key)
		s.dirty = true
	}
	return msg, ok
}

// Dirty reports whether the session must be saved
func (s *Session) Dirty() bool {
	return s.dirty
}

func (s *Session) clone() *Session {
	c := *s
	if s.UserID != nil {
		v := *s.UserID
		c.UserID = &v
	}
	if s.SelectedCompany != nil {
		v := *s.SelectedCompany
		c.SelectedCompany = &v
	}
	if s.Flash != nil {
		c.Flash = make(map[string]string, len(s.Flash))
		for k, v := range s.Flash {
			c.Flash[k] = v
		}
	}
	c.dirty = false
	return &c
}

// WithSession stores s on ctx
func WithSession(ctx context.Context, s *Session) context.Context {
	return contextkeys.WithSession(ctx, s)
}

// FromContext returns the session on ctx, or nil
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextkeys.SessionKey).(*Session)
	return s
}
