package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UserStore persists users. Emails are stored lowercased.
type UserStore struct {
	db   *sql.DB
	cost int
	now  func() time.Time
}

// NewUserStore creates a user store hashing with bcrypt at cost (0 for the
// default)
func NewUserStore(db *sql.DB, cost int) *UserStore {
	return &UserStore{db: db, cost: cost, now: func() time.Time { return time.Now().UTC() }}
}

const userColumns = "id, name, email, password_hash, status, company_id, created_at, updated_at"

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create hashes the password and inserts the user
func (s *UserStore) Create(ctx context.Context, req *CreateUserRequest) (*User, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	hash, err := HashPassword(req.Password, s.cost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &User{
		Name:         req.Name,
		Email:        email,
		PasswordHash: hash,
		Status:       StatusActive,
		CompanyID:    req.CompanyID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	query := `
		INSERT INTO users (name, email, password_hash, status, company_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO NOTHING
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		user.Name, user.Email, user.PasswordHash, user.Status, user.CompanyID, now, now,
	).Scan(&user.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Get returns a user by id
func (s *UserStore) Get(ctx context.Context, id int64) (*User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = $1"
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// GetByEmail returns a user by case-insensitive email
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE email = $1"
	return s.scanOne(s.db.QueryRowContext(ctx, query, normalizeEmail(email)))
}

// SetStatus activates or deactivates a user
func (s *UserStore) SetStatus(ctx context.Context, id int64, status string) error {
	if status != StatusActive && status != StatusInactive {
		return fmt.Errorf("invalid user status %q", status)
	}
	return s.update(ctx, "UPDATE users SET status = $1, updated_at = $2 WHERE id = $3", status, s.now(), id)
}

// SetPassword replaces the user's password hash
func (s *UserStore) SetPassword(ctx context.Context, id int64, password string) error {
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return err
	}
	return s.update(ctx, "UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3", hash, s.now(), id)
}

func (s *UserStore) update(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *UserStore) scanOne(row *sql.Row) (*User, error) {
	var (
		u         User
		companyID sql.NullInt64
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Status, &companyID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if companyID.Valid {
		id := companyID.Int64
		u.CompanyID = &id
	}
	return &u, nil
}
