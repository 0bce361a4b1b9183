// Package audit records security-relevant events: logins and lockouts, forced
// logouts on idle expiry, tenant switches, role and permission changes, and
// company setting edits.
//
// Events are written through a Logger. DBLogger persists to the audit_logs
// table, LogLogger mirrors events into the structured application log, and
// MultiLogger fans out to several sinks. Middleware puts the logger and the
// request metadata (client address, user agent, path) on the context so that
// handlers can log with
//
//	audit.FromContext(ctx).LogAuthentication(ctx, audit.EventTypeAuthLogin, &userID, email, audit.EventStatusSuccess, "login")
//
// Events carry the effective company id when one was resolved for the request.
package audit
