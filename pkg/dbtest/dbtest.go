// Package dbtest provides an in-memory SQLite database with the full schema applied.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/andobill/pkg/storage/postgres"
)

// Open returns a migrated in-memory database closed when the test ends
func Open(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	// each connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, postgres.RunMigrations(context.Background(), db, postgres.DialectSQLite))
	return db
}

// MustExec runs a statement and fails the test on error
func MustExec(t testing.TB, db *sql.DB, query string, args ...interface{}) sql.Result {
	t.Helper()
	res, err := db.Exec(query, args...)
	require.NoError(t, err)
	return res
}

// InsertCompany creates a company and returns its id
func InsertCompany(t testing.TB, db *sql.DB, name, status string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(
		"INSERT INTO companies (name, status) VALUES ($1, $2) RETURNING id", name, status,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// InsertUser creates a user and returns its id
func InsertUser(t testing.TB, db *sql.DB, name, email, passwordHash, status string, companyID *int64) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(
		"INSERT INTO users (name, email, password_hash, status, company_id) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		name, email, passwordHash, status, companyID,
	).Scan(&id)
	require.NoError(t, err)
	return id
}
