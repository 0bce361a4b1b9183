// Package session stores server-side sessions and expires idle ones.
//
// The cookie carries only a random session id. Session data lives in a Store:
// RedisStore when instances share state, MemoryStore (an expiring LRU)
// otherwise. Manager.Middleware loads the session for every request and saves
// it after the handler when it changed.
//
// Freshness enforces the idle timeout independently of the absolute session
// lifetime. A session idle for longer than the timeout is destroyed, a new
// token is issued, and the client is sent to the login page with a
// session_expired status.
package session
