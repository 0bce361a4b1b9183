// Package api assembles the AndoBill HTTP server.
//
// # Overview
//
// NewServer builds every component from a Deps value and mounts the routes
// on a gorilla/mux router wrapped with otelhttp:
//
//	server, err := api.NewServer(api.Deps{
//		Config:  cfg,
//		DB:      db,
//		Dialect: postgres.DialectPostgres,
//		Redis:   redisClient, // nil for in-process sessions and limits
//		Logger:  logger,
//		Metrics: metrics,
//	})
//	http.ListenAndServe(":8080", server)
//
// # Middleware Order
//
// Every request passes request id, logging, recovery and metrics. The
// operational endpoints (/health, /health/live, /health/ready, /metrics)
// stop there. Application routes then add the audit logger, language
// negotiation, the session and the freshness guard. Routes under /api also
// require an authenticated active principal, resolve the effective company
// and apply the per-user rate limit.
//
// # Routes
//
//	POST /login, POST /logout          pkg/auth
//	GET  /api/shared                   user, company, roles and abilities
//	GET  /api/dashboard                cached company statistics
//	/api/rbac/...                      pkg/rbac
//	/api/companies/..., /api/settings  pkg/tenant
//	GET  /api/audit/events             pkg/audit (when a database audit store is set)
package api
