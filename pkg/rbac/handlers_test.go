package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/contextkeys"
	"github.com/platinummonkey/andobill/pkg/dbtest"
)

func TestRegisterRoutes(t *testing.T) {
	router := mux.NewRouter()
	NewHandlers(&Store{}).RegisterRoutes(router)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/rbac/me"},
		{http.MethodGet, "/rbac/roles"},
		{http.MethodPost, "/rbac/roles"},
		{http.MethodDelete, "/rbac/roles/accountant"},
		{http.MethodPut, "/rbac/roles/accountant/permissions"},
		{http.MethodPost, "/rbac/users/1/roles"},
		{http.MethodDelete, "/rbac/users/1/roles/user"},
		{http.MethodPut, "/rbac/users/1/permissions"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			var match mux.RouteMatch
			assert.True(t, router.Match(httptest.NewRequest(rt.method, rt.path, nil), &match))
		})
	}
}

func TestRequirePermissionMiddleware(t *testing.T) {
	catalog := NewCatalog(DefaultRoles())
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name   string
		grants *Grants
		mw     mux.MiddlewareFunc
		want   int
	}{
		{"unauthenticated", nil, RequirePermission(PermManageUsers), http.StatusUnauthorized},
		{"missing", Resolve(NewPrincipal(1, int64Ptr(1), []string{RoleUser}, nil), catalog), RequirePermission(PermManageUsers), http.StatusForbidden},
		{"granted", Resolve(NewPrincipal(1, int64Ptr(1), []string{RoleAdmin}, nil), catalog), RequirePermission(PermManageUsers), http.StatusOK},
		{"any of", Resolve(NewPrincipal(1, int64Ptr(1), []string{RoleUser}, nil), catalog), RequireAnyPermission(PermManageUsers, PermViewReports), http.StatusOK},
		{"role", Resolve(NewPrincipal(1, int64Ptr(1), []string{RoleUser}, nil), catalog), RequireRole(RoleAdmin), http.StatusForbidden},
		{"role bypass when unscoped", Resolve(NewPrincipal(1, nil, []string{RoleSuperAdmin}, nil), catalog), RequireRole(RoleAdmin), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := audit.NewMemoryLogger()
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			ctx := audit.WithLogger(req.Context(), sink)
			if tt.grants != nil {
				ctx = WithGrants(ctx, tt.grants)
			}
			rec := httptest.NewRecorder()
			tt.mw(ok).ServeHTTP(rec, req.WithContext(ctx))

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				assert.Len(t, sink.OfType(audit.EventTypeAuthzAccessDenied), 1)
			}
		})
	}
}

type handlerFixture struct {
	store   *Store
	router  *mux.Router
	company int64
	other   int64
	admin   int64
	clerk   int64
	foreign int64
	sink    *audit.MemoryLogger
	changes int
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	store, db := setupStore(t)
	ctx := context.Background()

	f := &handlerFixture{store: store, sink: audit.NewMemoryLogger()}
	f.company = dbtest.InsertCompany(t, db, "Muster GmbH", StatusActive)
	f.other = dbtest.InsertCompany(t, db, "Andere AG", StatusActive)
	f.admin = dbtest.InsertUser(t, db, "Admin", "admin@muster.de", "x", StatusActive, &f.company)
	f.clerk = dbtest.InsertUser(t, db, "Clerk", "clerk@muster.de", "x", StatusActive, &f.company)
	f.foreign = dbtest.InsertUser(t, db, "Foreign", "x@andere.de", "x", StatusActive, &f.other)
	require.NoError(t, store.AssignRole(ctx, f.admin, RoleAdmin))
	require.NoError(t, store.AssignRole(ctx, f.clerk, RoleUser))
	require.NoError(t, store.AssignRole(ctx, f.foreign, RoleUser))

	f.router = mux.NewRouter()
	NewHandlers(store).OnChange(func() { f.changes++ }).RegisterRoutes(f.router)
	return f
}

func (f *handlerFixture) do(t *testing.T, actor int64, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)

	ctx, g, err := NewChecker(f.store).ForRequest(req.Context(), actor)
	require.NoError(t, err)
	if g.CompanyID() != nil {
		ctx = contextkeys.WithTenant(ctx, g.CompanyID())
	}
	ctx = audit.WithLogger(ctx, f.sink)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestHandlers_AssignRole(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, f.admin, http.MethodPost, "/rbac/users/"+itoa(f.clerk)+"/roles", map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, f.sink.OfType(audit.EventTypeAuthzPermissionGrant), 1)

	// clerk is now an admin; a company admin cannot touch another admin
	rec = f.do(t, f.admin, http.MethodDelete, "/rbac/users/"+itoa(f.clerk)+"/roles/admin", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, f.admin, http.MethodPost, "/rbac/users/"+itoa(f.foreign)+"/roles", map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "other company")

	rec = f.do(t, f.admin, http.MethodPost, "/rbac/users/"+itoa(f.foreign)+"/roles", map[string]string{"role": RoleSuperAdmin})
	assert.Equal(t, http.StatusForbidden, rec.Code, "escalation")

	rec = f.do(t, f.foreign, http.MethodPost, "/rbac/users/"+itoa(f.clerk)+"/roles", map[string]string{"role": "user"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "missing manage_users")
	assert.Equal(t, 1, f.changes, "only the successful assignment is reported")
}

func TestHandlers_AssignRole_CustomUnscopedRole(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateRole(ctx, &Role{
		Name:        "auditor",
		DisplayName: "Prüfer",
		Permissions: []string{PermTenantUnscoped},
	}))

	rec := f.do(t, f.admin, http.MethodPost, "/rbac/users/"+itoa(f.clerk)+"/roles", map[string]string{"role": "auditor"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	g, err := NewChecker(f.store).Load(ctx, f.clerk)
	require.NoError(t, err)
	assert.False(t, g.Unscoped())

	// once an operator grants it, the company admin can no longer touch the holder
	require.NoError(t, f.store.AssignRole(ctx, f.clerk, "auditor"))
	rec = f.do(t, f.admin, http.MethodDelete, "/rbac/users/"+itoa(f.clerk)+"/roles/auditor", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, f.admin, http.MethodPost, "/rbac/users/"+itoa(f.clerk)+"/roles", map[string]string{"role": RoleUser})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, f.admin, http.MethodPost, "/rbac/users/"+itoa(f.clerk)+"/roles", map[string]string{"role": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_RoleAdministration(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, f.admin, http.MethodPost, "/rbac/roles", map[string]interface{}{"name": "accountant", "display_name": "Buchhaltung"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "company admins cannot create roles")

	require.NoError(t, f.store.AssignRole(context.Background(), f.admin, RoleSuperAdmin))

	rec = f.do(t, f.admin, http.MethodPost, "/rbac/roles", map[string]interface{}{
		"name": "accountant", "display_name": "Buchhaltung", "permissions": []string{PermExportDATEV},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, f.admin, http.MethodDelete, "/rbac/roles/"+RoleSuperAdmin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, f.admin, http.MethodPut, "/rbac/roles/accountant/permissions", map[string]interface{}{"permissions": []string{"nope"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, f.admin, http.MethodDelete, "/rbac/roles/accountant", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, f.admin, http.MethodGet, "/rbac/roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var roles []Role
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&roles))
	assert.Len(t, roles, 3)
	assert.Equal(t, 2, f.changes)
}

func TestHandlers_Me(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, f.clerk, http.MethodGet, "/rbac/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Roles       []string `json:"roles"`
		Permissions []string `json:"permissions"`
		Unscoped    bool     `json:"unscoped"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []string{RoleUser}, body.Roles)
	assert.Contains(t, body.Permissions, PermManageInvoices)
	assert.False(t, body.Unscoped)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
