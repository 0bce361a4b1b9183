package throttle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Outcome of a login attempt
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failed"
)

// Failure reason codes stored with failed attempts
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonUnknownUser        = "unknown_user"
	ReasonAccountInactive    = "account_inactive"
	ReasonCompanyInactive    = "company_inactive"
)

// Attempt is one row of the append-only login attempt log
type Attempt struct {
	ID            int64
	Email         string
	UserID        *int64
	IPAddress     string
	UserAgent     string
	Outcome       Outcome
	FailureReason string
	AttemptedAt   time.Time
}

// AttemptLog is the persistence the Guard needs
type AttemptLog interface {
	Record(ctx context.Context, a *Attempt) error
	CountFailedByEmail(ctx context.Context, email string, since time.Time) (int, error)
	CountFailedByAddress(ctx context.Context, ip string, since time.Time) (int, error)
}

// AttemptStore keeps login attempts in SQL. Rows are only inserted and, past
// retention, pruned.
type AttemptStore struct {
	db *sql.DB
}

// NewAttemptStore creates an attempt store
func NewAttemptStore(db *sql.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

// Record appends an attempt
func (s *AttemptStore) Record(ctx context.Context, a *Attempt) error {
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now()
	}
	var reason interface{}
	if a.FailureReason != "" {
		reason = a.FailureReason
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO login_attempts (email, user_id, ip_address, user_agent, outcome, failure_reason, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		NormalizeEmail(a.Email), a.UserID, a.IPAddress, a.UserAgent, string(a.Outcome), reason, a.AttemptedAt.UTC(),
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// CountFailedByEmail counts failures for email at or after since
func (s *AttemptStore) CountFailedByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	return s.count(ctx, "email", NormalizeEmail(email), since)
}

// CountFailedByAddress counts failures from ip at or after since, whatever
// email was tried
func (s *AttemptStore) CountFailedByAddress(ctx context.Context, ip string, since time.Time) (int, error) {
	return s.count(ctx, "ip_address", ip, since)
}

func (s *AttemptStore) count(ctx context.Context, column, value string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM login_attempts WHERE "+column+" = $1 AND outcome = $2 AND attempted_at >= $3",
		value, string(OutcomeFailure), since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count login attempts: %w", err)
	}
	return n, nil
}

// Prune deletes attempts older than before and returns how many were removed
func (s *AttemptStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM login_attempts WHERE attempted_at < $1", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune login attempts: %w", err)
	}
	return res.RowsAffected()
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
