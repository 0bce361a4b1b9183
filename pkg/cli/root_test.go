package cli

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/andobill/pkg/auth"
	"github.com/platinummonkey/andobill/pkg/dbtest"
	"github.com/platinummonkey/andobill/pkg/rbac"
	"github.com/platinummonkey/andobill/pkg/storage/postgres"
	"github.com/platinummonkey/andobill/pkg/tenant"
)

func newTestRuntime(t *testing.T) (*Runtime, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	return &Runtime{
		DB:         dbtest.Open(t),
		Dialect:    postgres.DialectSQLite,
		Out:        out,
		BcryptCost: 4,
	}, out
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand(&Runtime{})

	assert.Equal(t, "andobill-admin", root.Name)
	assert.NotNil(t, root.Flags)

	expectedCommands := []string{
		"migrate",
		"seed-roles",
		"prune-attempts",
		"create-user",
		"set-user-status",
		"assign-role",
		"create-company",
		"set-company-status",
		"set-default-company",
	}
	for _, cmdName := range expectedCommands {
		assert.Contains(t, root.Subcommands, cmdName, "Expected subcommand %s to be registered", cmdName)
	}
	assert.Equal(t, len(expectedCommands), len(root.Subcommands))
}

func TestCommandExecute_Usage(t *testing.T) {
	root := NewRootCommand(&Runtime{})

	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		var err error
		output := captureStdout(t, func() { err = root.Execute(args) })

		assert.NoError(t, err)
		assert.Contains(t, output, "Usage: andobill-admin <command> [args]")
		assert.Contains(t, output, "set-default-company")
	}
}

func TestCommandExecute_UnknownCommand(t *testing.T) {
	root := NewRootCommand(&Runtime{})

	err := root.Execute([]string{"nonexistent"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: nonexistent")
}

func TestCommandExecute_SubcommandWithArgs(t *testing.T) {
	root := NewRootCommand(&Runtime{})

	var receivedArgs []string
	root.Subcommands["test"] = &Command{
		Name: "test",
		Run: func(args []string) error {
			receivedArgs = args
			return nil
		},
	}

	require.NoError(t, root.Execute([]string{"test", "arg1", "-flag"}))
	assert.Equal(t, []string{"arg1", "-flag"}, receivedArgs)
}

func TestBootstrapCommands(t *testing.T) {
	rt, out := newTestRuntime(t)
	root := NewRootCommand(rt)
	ctx := context.Background()

	require.NoError(t, root.Execute([]string{"migrate"}))
	require.NoError(t, root.Execute([]string{"seed-roles"}))
	assert.Contains(t, out.String(), "✓ super_admin")

	require.NoError(t, root.Execute([]string{"create-company", "-default", "Muster GmbH"}))
	companies := tenant.NewService(rt.DB, rt.Dialect, nil)
	def, err := companies.DefaultActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "Muster GmbH", def.Name)

	require.NoError(t, root.Execute([]string{"create-user",
		"-name", "Erika", "-email", "Erika@Example.com", "-password", "s3cret",
		"-company", "1", "-role", rbac.RoleAdmin,
	}))

	user, err := auth.NewUserStore(rt.DB, 4).GetByEmail(ctx, "erika@example.com")
	require.NoError(t, err)
	require.NotNil(t, user.CompanyID)
	assert.Equal(t, def.ID, *user.CompanyID)

	principal, err := rbac.NewStore(rt.DB).LoadPrincipal(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, rbac.HasRole(principal, rbac.RoleAdmin))

	require.NoError(t, root.Execute([]string{"assign-role", "-revoke", "erika@example.com", rbac.RoleAdmin}))
	principal, err = rbac.NewStore(rt.DB).LoadPrincipal(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, rbac.HasRole(principal, rbac.RoleAdmin))

	require.NoError(t, root.Execute([]string{"set-user-status", "erika@example.com", "inactive"}))
	user, err = auth.NewUserStore(rt.DB, 4).Get(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, user.IsActive())
}

func TestCreateUser_RequiresCompanyForScopedRoles(t *testing.T) {
	rt, _ := newTestRuntime(t)
	root := NewRootCommand(rt)

	err := root.Execute([]string{"create-user", "-email", "a@example.com", "-password", "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "company is required")
}

func TestSetDefaultCompany_MovesFlag(t *testing.T) {
	rt, _ := newTestRuntime(t)
	root := NewRootCommand(rt)
	first := dbtest.InsertCompany(t, rt.DB, "Erste", "active")
	second := dbtest.InsertCompany(t, rt.DB, "Zweite", "active")

	require.NoError(t, root.Execute([]string{"set-default-company", "1"}))
	require.NoError(t, root.Execute([]string{"set-default-company", "2"}))

	assert.Equal(t, 1, countDefaults(t, rt.DB))
	def, err := tenant.NewService(rt.DB, rt.Dialect, nil).DefaultActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second, def.ID)
	assert.NotEqual(t, first, def.ID)

	assert.Error(t, root.Execute([]string{"set-default-company", "abc"}))
	assert.ErrorIs(t, root.Execute([]string{"set-default-company", "99"}), tenant.ErrCompanyNotFound)
}

func TestSetCompanyStatus(t *testing.T) {
	rt, _ := newTestRuntime(t)
	root := NewRootCommand(rt)
	id := dbtest.InsertCompany(t, rt.DB, "Muster GmbH", "active")

	require.NoError(t, root.Execute([]string{"set-company-status", "1", "inactive"}))

	c, err := tenant.NewService(rt.DB, rt.Dialect, nil).Get(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, c.IsActive())
	assert.Error(t, root.Execute([]string{"set-company-status", "1", "paused"}))
}

func TestPruneAttempts_RejectsShortRetention(t *testing.T) {
	rt, out := newTestRuntime(t)
	root := NewRootCommand(rt)

	assert.Error(t, root.Execute([]string{"prune-attempts", "-retention", "1m"}))
	require.NoError(t, root.Execute([]string{"prune-attempts", "-retention", "24h"}))
	assert.Contains(t, out.String(), "Deleted 0 login attempts")
}

func countDefaults(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM companies WHERE is_default = TRUE").Scan(&n))
	return n
}
