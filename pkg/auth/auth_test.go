package auth

import (
	"context"
	"database/sql"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/dbtest"
	"github.com/platinummonkey/andobill/pkg/observability"
	"github.com/platinummonkey/andobill/pkg/storage/postgres"
	"github.com/platinummonkey/andobill/pkg/tenant"
	"github.com/platinummonkey/andobill/pkg/throttle"
)

const password = "correct-horse"

type authFixture struct {
	db        *sql.DB
	users     *UserStore
	companies *tenant.PostgresService
	attempts  *throttle.AttemptStore
	metrics   *observability.Metrics
	audit     *audit.MemoryLogger
	auth      *Authenticator
	ctx       context.Context
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := dbtest.Open(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	attempts := throttle.NewAttemptStore(db)
	guard := throttle.NewGuard(attempts, throttle.NewMemoryLimiter(), throttle.DefaultConfig(), nil, metrics)

	users := NewUserStore(db, bcrypt.MinCost)
	companies := tenant.NewService(db, postgres.DialectSQLite, nil)
	a, err := NewAuthenticator(users, companies, guard, bcrypt.MinCost, nil)
	require.NoError(t, err)

	mem := audit.NewMemoryLogger()
	return &authFixture{
		db:        db,
		users:     users,
		companies: companies,
		attempts:  attempts,
		metrics:   metrics,
		audit:     mem,
		auth:      a,
		ctx:       audit.WithLogger(context.Background(), mem),
	}
}

func (f *authFixture) createUser(t *testing.T, email string, companyID *int64) *User {
	t.Helper()
	u, err := f.users.Create(f.ctx, &CreateUserRequest{Name: "Test", Email: email, Password: password, CompanyID: companyID})
	require.NoError(t, err)
	return u
}

func (f *authFixture) createCompany(t *testing.T) int64 {
	t.Helper()
	c := &tenant.Company{Name: "Muster GmbH"}
	require.NoError(t, f.companies.Create(f.ctx, c))
	return c.ID
}

func (f *authFixture) lastReason(t *testing.T) string {
	t.Helper()
	var reason sql.NullString
	require.NoError(t, f.db.QueryRow("SELECT failure_reason FROM login_attempts ORDER BY id DESC LIMIT 1").Scan(&reason))
	return reason.String
}

func TestPassword(t *testing.T) {
	_, err := HashPassword("short", bcrypt.MinCost)
	assert.Error(t, err)

	hash, err := HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := CheckPassword(hash, password)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPassword(hash, "wrong-password")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = CheckPassword("not-a-hash", password)
	assert.Error(t, err)
}

func TestUserStore(t *testing.T) {
	f := newAuthFixture(t)

	u := f.createUser(t, "  Anna@Example.DE ", nil)
	assert.Equal(t, "anna@example.de", u.Email)
	assert.NotEqual(t, password, u.PasswordHash)

	got, err := f.users.GetByEmail(f.ctx, "ANNA@example.de")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Nil(t, got.CompanyID)

	_, err = f.users.Create(f.ctx, &CreateUserRequest{Name: "Dup", Email: "anna@EXAMPLE.de", Password: password})
	assert.ErrorIs(t, err, ErrEmailTaken)

	require.NoError(t, f.users.SetStatus(f.ctx, u.ID, StatusInactive))
	got, err = f.users.Get(f.ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive())

	assert.Error(t, f.users.SetStatus(f.ctx, u.ID, "banned"))
	assert.ErrorIs(t, f.users.SetStatus(f.ctx, 999, StatusActive), ErrUserNotFound)

	require.NoError(t, f.users.SetPassword(f.ctx, u.ID, "another-secret"))
	got, err = f.users.Get(f.ctx, u.ID)
	require.NoError(t, err)
	ok, err := CheckPassword(got.PasswordHash, "another-secret")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.users.GetByEmail(f.ctx, "nobody@example.de")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAttempt_Success(t *testing.T) {
	f := newAuthFixture(t)
	companyID := f.createCompany(t)
	u := f.createUser(t, "anna@example.de", &companyID)

	got, err := f.auth.Attempt(f.ctx, Credentials{Email: "Anna@Example.de", Password: password, IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	assert.Len(t, f.audit.OfType(audit.EventTypeAuthLogin), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoginAttemptsTotal.WithLabelValues("success", "")))
}

func TestAttempt_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, f *authFixture) string
		password   string
		wantErr    error
		wantReason string
	}{
		{
			name:       "unknown email",
			setup:      func(t *testing.T, f *authFixture) string { return "ghost@example.de" },
			password:   password,
			wantErr:    ErrInvalidCredentials,
			wantReason: throttle.ReasonUnknownUser,
		},
		{
			name: "wrong password",
			setup: func(t *testing.T, f *authFixture) string {
				f.createUser(t, "anna@example.de", nil)
				return "anna@example.de"
			},
			password:   "wrong-password",
			wantErr:    ErrInvalidCredentials,
			wantReason: throttle.ReasonInvalidCredentials,
		},
		{
			name: "inactive account checked before password",
			setup: func(t *testing.T, f *authFixture) string {
				u := f.createUser(t, "anna@example.de", nil)
				require.NoError(t, f.users.SetStatus(f.ctx, u.ID, StatusInactive))
				return "anna@example.de"
			},
			password:   "wrong-password",
			wantErr:    ErrAccountInactive,
			wantReason: throttle.ReasonAccountInactive,
		},
		{
			name: "inactive company checked before password",
			setup: func(t *testing.T, f *authFixture) string {
				id := f.createCompany(t)
				require.NoError(t, f.companies.SetStatus(f.ctx, id, tenant.StatusInactive))
				f.createUser(t, "anna@example.de", &id)
				return "anna@example.de"
			},
			password:   password,
			wantErr:    ErrCompanyInactive,
			wantReason: throttle.ReasonCompanyInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			email := tt.setup(t, f)

			_, err := f.auth.Attempt(f.ctx, Credentials{Email: email, Password: tt.password, IPAddress: "10.0.0.1"})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantReason, f.lastReason(t))
			assert.Len(t, f.audit.OfType(audit.EventTypeAuthLoginFailed), 1)
		})
	}
}

func TestAttempt_Throttled(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "anna@example.de", nil)

	for i := 0; i < 5; i++ {
		_, err := f.auth.Attempt(f.ctx, Credentials{Email: "anna@example.de", Password: "wrong-password", IPAddress: "10.0.0.1"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := f.auth.Attempt(f.ctx, Credentials{Email: "anna@example.de", Password: password, IPAddress: "10.0.0.1"})
	var rl *throttle.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Greater(t, rl.RetryAfterSeconds(), 0)

	// the throttle key includes the address
	_, err = f.auth.Attempt(f.ctx, Credentials{Email: "anna@example.de", Password: password, IPAddress: "10.0.0.2"})
	assert.NoError(t, err)
}
