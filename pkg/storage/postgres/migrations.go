package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect selects the DDL variant of a migration
type Dialect int

const (
	// DialectPostgres is the production dialect
	DialectPostgres Dialect = iota
	// DialectSQLite is used by in-memory test databases
	DialectSQLite
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Postgres    string
	SQLite      string
}

func (m Migration) sql(d Dialect) string {
	if d == DialectSQLite && m.SQLite != "" {
		return m.SQLite
	}
	return m.Postgres
}

// GetMigrations returns all schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create companies table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS companies (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					is_default BOOLEAN NOT NULL DEFAULT FALSE,
					default_set_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_single_default ON companies (is_default) WHERE is_default;
				CREATE INDEX IF NOT EXISTS idx_companies_status ON companies (status);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS companies (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					is_default BOOLEAN NOT NULL DEFAULT FALSE,
					default_set_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_single_default ON companies (is_default) WHERE is_default;
			`,
		},
		{
			Version:     2,
			Description: "Create users table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					email VARCHAR(255) NOT NULL UNIQUE,
					password_hash VARCHAR(255) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					company_id BIGINT REFERENCES companies(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_users_company_id ON users (company_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS users (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					email TEXT NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					company_id INTEGER REFERENCES companies(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     3,
			Description: "Create roles and permissions tables",
			Postgres: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					is_reserved BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT ''
				);
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				);
				CREATE TABLE IF NOT EXISTS user_roles (
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (user_id, role_id)
				);
				CREATE TABLE IF NOT EXISTS user_permissions (
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (user_id, permission_id)
				);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS roles (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE,
					display_name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					is_reserved BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
				CREATE TABLE IF NOT EXISTS permissions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT ''
				);
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id INTEGER NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				);
				CREATE TABLE IF NOT EXISTS user_roles (
					user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (user_id, role_id)
				);
				CREATE TABLE IF NOT EXISTS user_permissions (
					user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					permission_id INTEGER NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (user_id, permission_id)
				);
			`,
		},
		{
			Version:     4,
			Description: "Create company_settings table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS company_settings (
					id BIGSERIAL PRIMARY KEY,
					company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
					key VARCHAR(100) NOT NULL,
					value TEXT NOT NULL,
					type VARCHAR(16) NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE (company_id, key)
				);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS company_settings (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					company_id INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
					key TEXT NOT NULL,
					value TEXT NOT NULL,
					type TEXT NOT NULL,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (company_id, key)
				);
			`,
		},
		{
			Version:     5,
			Description: "Create login_attempts table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS login_attempts (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL,
					user_id BIGINT,
					ip_address VARCHAR(45) NOT NULL,
					user_agent TEXT NOT NULL DEFAULT '',
					outcome VARCHAR(10) NOT NULL,
					failure_reason VARCHAR(50),
					attempted_at TIMESTAMPTZ NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_login_attempts_email ON login_attempts (email, outcome, attempted_at);
				CREATE INDEX IF NOT EXISTS idx_login_attempts_ip ON login_attempts (ip_address, outcome, attempted_at);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS login_attempts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					email TEXT NOT NULL,
					user_id INTEGER,
					ip_address TEXT NOT NULL,
					user_agent TEXT NOT NULL DEFAULT '',
					outcome TEXT NOT NULL,
					failure_reason TEXT,
					attempted_at TIMESTAMP NOT NULL
				);
			`,
		},
		{
			Version:     6,
			Description: "Create tenant-scoped ledger tables read by the dashboard",
			Postgres: `
				CREATE TABLE IF NOT EXISTS customers (
					id BIGSERIAL PRIMARY KEY,
					company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE TABLE IF NOT EXISTS invoices (
					id BIGSERIAL PRIMARY KEY,
					company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
					customer_id BIGINT REFERENCES customers(id) ON DELETE SET NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'draft',
					total NUMERIC(12, 2) NOT NULL DEFAULT 0,
					due_date DATE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE TABLE IF NOT EXISTS expenses (
					id BIGSERIAL PRIMARY KEY,
					company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
					amount NUMERIC(12, 2) NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_customers_company_id ON customers (company_id);
				CREATE INDEX IF NOT EXISTS idx_invoices_company_id ON invoices (company_id, status);
				CREATE INDEX IF NOT EXISTS idx_expenses_company_id ON expenses (company_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS customers (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					company_id INTEGER NOT NULL,
					name TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
				CREATE TABLE IF NOT EXISTS invoices (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					company_id INTEGER NOT NULL,
					customer_id INTEGER,
					status TEXT NOT NULL DEFAULT 'draft',
					total REAL NOT NULL DEFAULT 0,
					due_date DATE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
				CREATE TABLE IF NOT EXISTS expenses (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					company_id INTEGER NOT NULL,
					amount REAL NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     7,
			Description: "Create audit_logs table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMPTZ NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					user_id BIGINT,
					username VARCHAR(255),
					company_id BIGINT,
					resource_type VARCHAR(50),
					resource_id VARCHAR(255),
					ip_address VARCHAR(45),
					user_agent TEXT,
					request_id VARCHAR(100),
					method VARCHAR(10),
					path TEXT,
					message TEXT,
					error_message TEXT,
					metadata JSONB,
					changes JSONB
				);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs (timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs (event_type);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs (user_id);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_company_id ON audit_logs (company_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					timestamp TIMESTAMP NOT NULL,
					event_type TEXT NOT NULL,
					status TEXT NOT NULL,
					user_id INTEGER,
					username TEXT,
					company_id INTEGER,
					resource_type TEXT,
					resource_id TEXT,
					ip_address TEXT,
					user_agent TEXT,
					request_id TEXT,
					method TEXT,
					path TEXT,
					message TEXT,
					error_message TEXT,
					metadata TEXT,
					changes TEXT
				);
			`,
		},
	}
}

// RunMigrations applies pending migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, dialect Dialect) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}
		m := migration
		err := InTx(ctx, db, nil, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql(dialect)); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
				m.Version, m.Description,
			); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
