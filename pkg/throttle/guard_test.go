package throttle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/dbtest"
	"github.com/platinummonkey/andobill/pkg/observability"
)

type guardFixture struct {
	guard   *Guard
	store   *AttemptStore
	limiter *MemoryLimiter
	clock   *fakeClock
	metrics *observability.Metrics
	audit   *audit.MemoryLogger
	ctx     context.Context
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	clock := newFakeClock()
	limiter := NewMemoryLimiter()
	limiter.now = clock.Now
	store := NewAttemptStore(dbtest.Open(t))
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	g := NewGuard(store, limiter, DefaultConfig(), nil, metrics)
	g.now = clock.Now

	mem := audit.NewMemoryLogger()
	return &guardFixture{
		guard:   g,
		store:   store,
		limiter: limiter,
		clock:   clock,
		metrics: metrics,
		audit:   mem,
		ctx:     audit.WithLogger(context.Background(), mem),
	}
}

func (f *guardFixture) fail(t *testing.T, email, ip string) {
	t.Helper()
	require.NoError(t, f.guard.Check(f.ctx, email, ip))
	require.NoError(t, f.guard.Failed(f.ctx, Attempt{Email: email, IPAddress: ip, FailureReason: ReasonInvalidCredentials}))
}

func TestProgressiveLockout(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 0}, {4, 0},
		{5, 5 * time.Minute}, {9, 5 * time.Minute},
		{10, 15 * time.Minute}, {14, 15 * time.Minute},
		{15, 30 * time.Minute}, {100, 30 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.failures), func(t *testing.T) {
			assert.Equal(t, tt.want, ProgressiveLockout(tt.failures))
		})
	}
}

func TestGuard_SixthAttemptRejected(t *testing.T) {
	f := newGuardFixture(t)

	for i := 0; i < 5; i++ {
		f.fail(t, "User@Example.com", "10.0.0.1")
		f.clock.Advance(time.Second)
	}

	err := f.guard.Check(f.ctx, "user@example.com", "10.0.0.1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))

	var rl *RateLimitedError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, ScopeIdentifier, rl.Scope)
	assert.Greater(t, rl.RetryAfter, time.Minute, "progressive lockout extends the decay window")
	assert.Len(t, f.audit.OfType(audit.EventTypeAuthLockout), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ThrottleRejectionsTotal.WithLabelValues("identifier")))

	// the identifier key includes the address
	require.NoError(t, f.guard.Check(f.ctx, "user@example.com", "10.0.0.2"))
	require.NoError(t, f.guard.Succeeded(f.ctx, Attempt{Email: "user@example.com", IPAddress: "10.0.0.2"}))
}

func TestGuard_AddressBlock(t *testing.T) {
	f := newGuardFixture(t)

	for i := 0; i < 20; i++ {
		f.fail(t, fmt.Sprintf("victim%d@example.com", i), "203.0.113.5")
	}

	// unrelated, unthrottled email with correct credentials is still refused
	err := f.guard.Check(f.ctx, "innocent@example.com", "203.0.113.5")
	var rl *RateLimitedError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, ScopeAddress, rl.Scope)
	assert.Equal(t, 3600, rl.RetryAfterSeconds())

	// the failures age out of the 15 minute window but the lock holds
	f.clock.Advance(30 * time.Minute)
	err = f.guard.Check(f.ctx, "innocent@example.com", "203.0.113.5")
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 1800, rl.RetryAfterSeconds())

	// other addresses are unaffected
	assert.NoError(t, f.guard.Check(f.ctx, "innocent@example.com", "203.0.113.6"))

	f.clock.Advance(31 * time.Minute)
	assert.NoError(t, f.guard.Check(f.ctx, "innocent@example.com", "203.0.113.5"))
}

func TestGuard_ProgressiveLockoutStacks(t *testing.T) {
	f := newGuardFixture(t)
	email, ip := "user@example.com", "10.0.0.1"
	key := IdentifierKey(email, ip)

	for i := 0; i < 4; i++ {
		f.fail(t, email, ip)
	}
	wait, err := f.limiter.AvailableIn(f.ctx, key)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, wait, "no extension below five failures")

	f.fail(t, email, ip)
	wait, err = f.limiter.AvailableIn(f.ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Minute, wait, "decay plus five minutes")
}

func TestGuard_SuccessClearsIdentifier(t *testing.T) {
	f := newGuardFixture(t)
	email, ip := "user@example.com", "10.0.0.1"

	for i := 0; i < 3; i++ {
		f.fail(t, email, ip)
	}
	require.NoError(t, f.guard.Succeeded(f.ctx, Attempt{Email: email, IPAddress: ip}))

	n, err := f.limiter.Attempts(f.ctx, IdentifierKey(email, ip))
	require.NoError(t, err)
	assert.Zero(t, n)

	// the log keeps the failures
	failed, err := f.store.CountFailedByEmail(f.ctx, email, f.clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, failed)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoginAttemptsTotal.WithLabelValues("success", "")))
}

func TestRateLimitedError(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want int
	}{
		{0, 1},
		{time.Millisecond, 1},
		{time.Second, 1},
		{1001 * time.Millisecond, 2},
		{time.Hour, 3600},
	}
	for _, tt := range tests {
		e := &RateLimitedError{RetryAfter: tt.wait}
		assert.Equal(t, tt.want, e.RetryAfterSeconds(), tt.wait.String())
	}
	assert.Contains(t, (&RateLimitedError{RetryAfter: time.Minute}).Error(), "retry after 60 seconds")
}
