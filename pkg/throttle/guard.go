package throttle

import (
	"context"
	"time"

	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/observability"
)

// Config holds the throttle thresholds
type Config struct {
	MaxAttempts      int
	Decay            time.Duration
	Window           time.Duration
	AddressThreshold int
	AddressLockout   time.Duration
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      5,
		Decay:            time.Minute,
		Window:           15 * time.Minute,
		AddressThreshold: 20,
		AddressLockout:   60 * time.Minute,
	}
}

// ProgressiveLockout returns the extra lockout for a number of recent
// failures: none below 5, then 5, 15 and 30 minutes from 5, 10 and 15.
func ProgressiveLockout(failures int) time.Duration {
	switch {
	case failures >= 15:
		return 30 * time.Minute
	case failures >= 10:
		return 15 * time.Minute
	case failures >= 5:
		return 5 * time.Minute
	}
	return 0
}

// IdentifierKey is the limiter key for an email and source address
func IdentifierKey(email, ip string) string {
	return NormalizeEmail(email) + "|" + ip
}

// AddressKey is the limiter key for a source address alone
func AddressKey(ip string) string {
	return "addr|" + ip
}

// Guard applies the throttle around credential verification
type Guard struct {
	attempts AttemptLog
	limiter  Limiter
	cfg      Config
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewGuard creates a guard; logger and metrics may be nil
func NewGuard(attempts AttemptLog, limiter Limiter, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Guard {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Guard{
		attempts: attempts,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger.WithField("component", "throttle"),
		metrics:  metrics,
		now:      time.Now,
	}
}

// Check runs before credentials are verified. It returns a
// *RateLimitedError when the address or the identifier is throttled.
func (g *Guard) Check(ctx context.Context, email, ip string) error {
	now := g.now()
	addrKey := AddressKey(ip)

	failures, err := g.attempts.CountFailedByAddress(ctx, ip, now.Add(-g.cfg.Window))
	if err != nil {
		return err
	}
	if failures >= g.cfg.AddressThreshold {
		if err := g.limiter.Lock(ctx, addrKey, g.cfg.AddressLockout); err != nil {
			return err
		}
		return g.reject(ctx, addrKey, ScopeAddress, email, ip)
	}
	locked, err := g.limiter.TooManyAttempts(ctx, addrKey, g.cfg.AddressThreshold)
	if err != nil {
		return err
	}
	if locked {
		return g.reject(ctx, addrKey, ScopeAddress, email, ip)
	}

	idKey := IdentifierKey(email, ip)
	limited, err := g.limiter.TooManyAttempts(ctx, idKey, g.cfg.MaxAttempts)
	if err != nil {
		return err
	}
	if limited {
		return g.reject(ctx, idKey, ScopeIdentifier, email, ip)
	}
	return nil
}

func (g *Guard) reject(ctx context.Context, key string, scope Scope, email, ip string) error {
	wait, err := g.limiter.AvailableIn(ctx, key)
	if err != nil {
		return err
	}
	rl := &RateLimitedError{RetryAfter: wait, Scope: scope}

	g.metrics.RecordThrottleRejection(string(scope))
	g.logger.WithFields(map[string]interface{}{
		"scope":       string(scope),
		"email":       NormalizeEmail(email),
		"ip":          ip,
		"retry_after": rl.RetryAfterSeconds(),
	}).Warn("login throttled")
	_ = audit.FromContext(ctx).LogAuthentication(ctx, audit.EventTypeAuthLockout, nil,
		NormalizeEmail(email), audit.EventStatusDenied, "login throttled by "+string(scope))

	return rl
}

// Failed records a failed attempt, hits the identifier key, and extends its
// lock by the progressive lockout for the email's recent failures.
func (g *Guard) Failed(ctx context.Context, a Attempt) error {
	now := g.now()
	a.Outcome = OutcomeFailure
	a.AttemptedAt = now
	if err := g.attempts.Record(ctx, &a); err != nil {
		return err
	}
	g.metrics.RecordLoginAttempt(string(OutcomeFailure), a.FailureReason)

	idKey := IdentifierKey(a.Email, a.IPAddress)
	if _, err := g.limiter.Hit(ctx, idKey, g.cfg.Decay); err != nil {
		return err
	}

	recent, err := g.attempts.CountFailedByEmail(ctx, a.Email, now.Add(-g.cfg.Window))
	if err != nil {
		return err
	}
	if extra := ProgressiveLockout(recent); extra > 0 {
		if err := g.limiter.Extend(ctx, idKey, extra); err != nil {
			return err
		}
		g.logger.WithFields(map[string]interface{}{
			"email":    NormalizeEmail(a.Email),
			"failures": recent,
			"extra":    extra.String(),
		}).Info("login lockout extended")
	}
	return nil
}

// Succeeded records a successful attempt and clears the identifier key
func (g *Guard) Succeeded(ctx context.Context, a Attempt) error {
	a.Outcome = OutcomeSuccess
	a.FailureReason = ""
	a.AttemptedAt = g.now()
	if err := g.attempts.Record(ctx, &a); err != nil {
		return err
	}
	g.metrics.RecordLoginAttempt(string(OutcomeSuccess), "")
	return g.limiter.Clear(ctx, IdentifierKey(a.Email, a.IPAddress))
}
