// Package throttle limits login attempts per identifier and per source address.
//
// Two keys are tracked for every attempt: the identifier key (lowercased email
// plus source address) and the address key. Failed attempts are appended to
// the login_attempts table; the windowed counts used for address blocking and
// progressive lockout are always read back from it. Short-lived counters and
// locks live in a Limiter: RedisLimiter when several instances share state,
// MemoryLimiter otherwise.
//
// Order of checks on each attempt:
//
//  1. 20 or more failures from the address in the last 15 minutes lock the
//     address for 60 minutes, even for correct credentials.
//  2. 5 hits on the identifier key within its decay window reject the attempt.
//  3. Credentials are verified by the caller.
//  4. On failure the attempt is recorded, the identifier key is hit, and the
//     lock is extended by ProgressiveLockout of the email's recent failures.
//  5. On success the attempt is recorded and the identifier key is cleared.
package throttle
