package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/andobill/pkg/dbtest"
)

func TestAttemptStore_Windows(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore(dbtest.Open(t))
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	record := func(email, ip string, outcome Outcome, at time.Time) {
		require.NoError(t, store.Record(ctx, &Attempt{Email: email, IPAddress: ip, Outcome: outcome, AttemptedAt: at}))
	}
	record("A@Example.com", "1.1.1.1", OutcomeFailure, now.Add(-20*time.Minute))
	record("a@example.com", "1.1.1.1", OutcomeFailure, now.Add(-15*time.Minute))
	record("a@example.com", "1.1.1.1", OutcomeFailure, now.Add(-time.Minute))
	record("b@example.com", "1.1.1.1", OutcomeFailure, now)
	record("a@example.com", "1.1.1.1", OutcomeSuccess, now)

	since := now.Add(-15 * time.Minute)
	n, err := store.CountFailedByEmail(ctx, " A@example.COM ", since)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "boundary is inclusive and successes are ignored")

	n, err = store.CountFailedByAddress(ctx, "1.1.1.1", since)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	pruned, err := store.Prune(ctx, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)
}

func TestAttemptStore_RecordSQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	uid := int64(7)
	mock.ExpectQuery("INSERT INTO login_attempts").
		WithArgs("user@example.com", &uid, "1.1.1.1", "curl", "failed", "account_inactive", at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	a := &Attempt{
		Email: "User@Example.com", UserID: &uid, IPAddress: "1.1.1.1", UserAgent: "curl",
		Outcome: OutcomeFailure, FailureReason: ReasonAccountInactive, AttemptedAt: at,
	}
	require.NoError(t, NewAttemptStore(db).Record(context.Background(), a))
	assert.Equal(t, int64(42), a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
