package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/andobill/pkg/observability"
	"github.com/platinummonkey/andobill/pkg/storage/postgres"
)

// Service manages companies
type Service interface {
	Create(ctx context.Context, company *Company) error
	Get(ctx context.Context, id int64) (*Company, error)
	Exists(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context) ([]*Company, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	SetDefault(ctx context.Context, id int64) error
	DefaultActive(ctx context.Context) (*Company, error)
}

// defaultLockKey serializes default swaps across connections on PostgreSQL
const defaultLockKey = 7134002

// PostgresService implements Service on database/sql
type PostgresService struct {
	db      *sql.DB
	dialect postgres.Dialect
	logger  *observability.Logger
	now     func() time.Time
}

// NewPostgresService creates a service for the production dialect
func NewPostgresService(db *sql.DB, logger *observability.Logger) *PostgresService {
	return NewService(db, postgres.DialectPostgres, logger)
}

// NewService creates a service for the given SQL dialect
func NewService(db *sql.DB, dialect postgres.Dialect, logger *observability.Logger) *PostgresService {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &PostgresService{
		db:      db,
		dialect: dialect,
		logger:  logger.WithField("component", "tenant"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

const companyColumns = "id, name, status, is_default, default_set_at, created_at, updated_at"

// Create creates a new company
func (s *PostgresService) Create(ctx context.Context, company *Company) error {
	if company.Status == "" {
		company.Status = StatusActive
	}
	if !company.Status.Valid() {
		return fmt.Errorf("invalid company status %q", company.Status)
	}

	now := s.now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO companies (name, status, is_default, created_at, updated_at)
		VALUES ($1, $2, FALSE, $3, $4)
		RETURNING id`,
		company.Name, string(company.Status), now, now,
	).Scan(&company.ID)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	company.CreatedAt, company.UpdatedAt = now, now
	company.IsDefault = false
	return nil
}

// Get retrieves a company by id
func (s *PostgresService) Get(ctx context.Context, id int64) (*Company, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+companyColumns+" FROM companies WHERE id = $1", id)
	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCompanyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return c, nil
}

// Exists reports whether a company id exists, regardless of status
func (s *PostgresService) Exists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM companies WHERE id = $1", id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check company: %w", err)
	}
	return n > 0, nil
}

// List returns all companies ordered by name
func (s *PostgresService) List(ctx context.Context) ([]*Company, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+companyColumns+" FROM companies ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var out []*Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetStatus activates or deactivates a company
func (s *PostgresService) SetStatus(ctx context.Context, id int64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid company status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE companies SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update company status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCompanyNotFound
	}
	return nil
}

// SetDefault marks id as the only default company. The unset and set run in
// one transaction under a lock, and the partial unique index on is_default
// rejects any interleaving that would leave two defaults.
func (s *PostgresService) SetDefault(ctx context.Context, id int64) error {
	return postgres.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		if s.dialect == postgres.DialectPostgres {
			if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", defaultLockKey); err != nil {
				return fmt.Errorf("failed to lock default company: %w", err)
			}
		}

		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM companies WHERE id = $1", id).Scan(&n); err != nil {
			return fmt.Errorf("failed to check company: %w", err)
		}
		if n == 0 {
			return ErrCompanyNotFound
		}

		now := s.now()
		if _, err := tx.ExecContext(ctx,
			"UPDATE companies SET is_default = FALSE, updated_at = $1 WHERE is_default = TRUE AND id <> $2",
			now, id,
		); err != nil {
			return fmt.Errorf("failed to clear default company: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE companies SET is_default = TRUE, default_set_at = $1, updated_at = $2 WHERE id = $3",
			now, now, id,
		); err != nil {
			return fmt.Errorf("failed to set default company: %w", err)
		}
		return nil
	})
}

// DefaultActive returns the default company if it is active, nil otherwise.
// Should more than one default ever be present, the most recently set wins.
func (s *PostgresService) DefaultActive(ctx context.Context) (*Company, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+companyColumns+` FROM companies
		WHERE is_default = TRUE AND status = $1
		ORDER BY default_set_at DESC, id DESC`, string(StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to query default company: %w", err)
	}
	defer rows.Close()

	var first *Company
	count := 0
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		if first == nil {
			first = c
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if count > 1 {
		s.logger.WithFields(map[string]interface{}{
			"defaults": count,
			"chosen":   first.ID,
		}).Warn("multiple default companies found")
	}
	return first, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCompany(row scanner) (*Company, error) {
	var c Company
	var status string
	var defaultSetAt sql.NullTime
	if err := row.Scan(&c.ID, &c.Name, &status, &c.IsDefault, &defaultSetAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = Status(status)
	if defaultSetAt.Valid {
		t := defaultSetAt.Time
		c.DefaultSetAt = &t
	}
	return &c, nil
}
