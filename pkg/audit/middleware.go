package audit

import (
	"net/http"
)

// Middleware attaches the audit logger and request metadata to each request
type Middleware struct {
	logger Logger
}

// NewMiddleware creates a new audit middleware
func NewMiddleware(logger Logger) *Middleware {
	return &Middleware{logger: logger}
}

// Handler wraps an HTTP handler so events logged downstream carry request context
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithLogger(r.Context(), m.logger)
		ctx = WithRequestInfo(ctx, r)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
