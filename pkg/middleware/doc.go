// Package middleware provides the authenticated request pipeline.
//
// The server chains them after the session middleware:
//
//	auth := middleware.NewAuthMiddleware(checker, sessions, "/login", false)
//	chain := httputil.Chain(
//		sessions.Middleware,
//		freshness.Middleware,
//		auth.Handler,
//		middleware.TenantContext(resolver),
//		rateLimit.Handler,
//	)
//
// AuthMiddleware resolves the session user's grants once per request and
// sets the audit actor. TenantContext stores the effective company id for
// handlers and policies. RateLimitMiddleware caps request rates per user on
// a throttle.Limiter.
package middleware
