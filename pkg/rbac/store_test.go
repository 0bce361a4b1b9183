package rbac

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/andobill/pkg/dbtest"
)

func setupStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db := dbtest.Open(t)
	store := NewStore(db)
	require.NoError(t, store.Seed(context.Background()))
	return store, db
}

func TestStore_SeedIsIdempotent(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.Seed(ctx))

	roles, err := store.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)
	assert.Equal(t, RoleAdmin, roles[0].Name)
	assert.Equal(t, RoleSuperAdmin, roles[1].Name)
	assert.True(t, roles[1].IsReserved)
	assert.ElementsMatch(t, AllPermissions(), roles[1].Permissions)
}

func TestStore_LoadPrincipal(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()

	companyID := dbtest.InsertCompany(t, db, "Muster GmbH", StatusActive)
	userID := dbtest.InsertUser(t, db, "Anna", "anna@example.de", "x", StatusActive, &companyID)

	require.NoError(t, store.AssignRole(ctx, userID, RoleUser))
	require.NoError(t, store.AssignRole(ctx, userID, RoleUser), "re-assigning is a no-op")
	require.NoError(t, store.SyncPermissions(ctx, userID, []string{PermManageExpenses}))

	p, err := store.LoadPrincipal(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "anna@example.de", p.Email)
	require.NotNil(t, p.CompanyID)
	assert.Equal(t, companyID, *p.CompanyID)
	assert.Equal(t, []string{RoleUser}, p.RoleNames())

	catalog, err := store.LoadCatalog(ctx)
	require.NoError(t, err)
	assert.True(t, HasPermission(p, catalog, PermManageExpenses))
	assert.True(t, HasPermission(p, catalog, PermManageInvoices))
	assert.False(t, IsTenantUnscoped(p, catalog))

	require.NoError(t, store.RevokeRole(ctx, userID, RoleUser))
	p, err = store.LoadPrincipal(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, p.Roles)

	_, err = store.LoadPrincipal(ctx, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStore_SyncPermissionsReplaces(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()
	userID := dbtest.InsertUser(t, db, "Ben", "ben@example.de", "x", StatusActive, nil)

	require.NoError(t, store.SyncPermissions(ctx, userID, []string{PermViewReports, PermExportDATEV}))
	require.NoError(t, store.SyncPermissions(ctx, userID, []string{PermExportDATEV}))

	p, err := store.LoadPrincipal(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, p.DirectPermissions, 1)

	err = store.SyncPermissions(ctx, userID, []string{"fly_to_moon"})
	assert.ErrorIs(t, err, ErrUnknownPermission)
	p, err = store.LoadPrincipal(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, p.DirectPermissions, 1, "failed sync leaves grants untouched")
}

func TestStore_AssignRoleErrors(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()
	userID := dbtest.InsertUser(t, db, "Cem", "cem@example.de", "x", StatusActive, nil)

	assert.ErrorIs(t, store.AssignRole(ctx, userID, "ghost"), ErrRoleNotFound)
	assert.ErrorIs(t, store.AssignRole(ctx, 4242, RoleUser), ErrUserNotFound)
}

func TestStore_CustomRoleLifecycle(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()

	role := &Role{Name: "accountant", DisplayName: "Buchhaltung", Permissions: []string{PermExportDATEV, PermViewReports}}
	require.NoError(t, store.CreateRole(ctx, role))
	assert.NotZero(t, role.ID)

	assert.ErrorIs(t, store.CreateRole(ctx, &Role{Name: "accountant", DisplayName: "dup"}), ErrRoleExists)
	assert.ErrorIs(t, store.CreateRole(ctx, &Role{Name: "bad", DisplayName: "bad", Permissions: []string{"nope"}}), ErrUnknownPermission)

	require.NoError(t, store.SyncRolePermissions(ctx, "accountant", []string{PermExportDATEV}))
	got, err := store.GetRole(ctx, "accountant")
	require.NoError(t, err)
	assert.Equal(t, []string{PermExportDATEV}, got.Permissions)

	userID := dbtest.InsertUser(t, db, "Dora", "dora@example.de", "x", StatusActive, nil)
	require.NoError(t, store.AssignRole(ctx, userID, "accountant"))

	require.NoError(t, store.DeleteRole(ctx, "accountant"))
	_, err = store.GetRole(ctx, "accountant")
	assert.ErrorIs(t, err, ErrRoleNotFound)

	p, err := store.LoadPrincipal(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, p.Roles)
}

func TestStore_DeleteReservedRole(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.DeleteRole(ctx, RoleSuperAdmin), ErrReservedRole)
	assert.ErrorIs(t, store.CreateRole(ctx, &Role{Name: RoleSuperAdmin, DisplayName: "x"}), ErrReservedRole)

	_, err := store.GetRole(ctx, RoleSuperAdmin)
	assert.NoError(t, err, "reserved role survives")

	assert.ErrorIs(t, store.DeleteRole(ctx, "ghost"), ErrRoleNotFound)
}
