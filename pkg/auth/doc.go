// Package auth verifies email and password logins and binds the result to
// the session.
//
// # Login flow
//
// Authenticator.Attempt runs in a fixed order:
//
//  1. throttle.Guard.Check rejects throttled addresses and identifiers
//  2. the user is looked up by lowercased email
//  3. the account status, then the owning company's status, are checked
//  4. the bcrypt hash is compared
//
// Every failure after step 1 is recorded through Guard.Failed with its
// reason code. Inactive accounts and companies get their own errors; unknown
// emails and wrong passwords both surface as ErrInvalidCredentials.
//
// # HTTP
//
//	h := auth.NewHandlers(authenticator, sessions)
//	h.RegisterRoutes(router) // POST /login, POST /logout
//
// Throttled logins answer 429 with a Retry-After header and a localized
// message.
package auth
