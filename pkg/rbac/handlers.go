package rbac

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/contextkeys"
	"github.com/platinummonkey/andobill/pkg/httputil"
)

// Handlers provides HTTP handlers for role and permission administration
type Handlers struct {
	store    *Store
	onChange func()
}

// NewHandlers creates new RBAC handlers
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store, onChange: func() {}}
}

// OnChange registers fn to run after any role or permission mutation
func (h *Handlers) OnChange(fn func()) *Handlers {
	h.onChange = fn
	return h
}

// RegisterRoutes registers all RBAC routes. The router must already run the
// authentication middleware that places Grants on the request context.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	manageUsers := RequirePermission(PermManageUsers)
	unscoped := RequirePermission(PermTenantUnscoped)

	router.HandleFunc("/rbac/me", h.Me).Methods(http.MethodGet)

	// Role management
	router.Handle("/rbac/roles", manageUsers(http.HandlerFunc(h.ListRoles))).Methods(http.MethodGet)
	router.Handle("/rbac/roles", unscoped(http.HandlerFunc(h.CreateRole))).Methods(http.MethodPost)
	router.Handle("/rbac/roles/{name}", unscoped(http.HandlerFunc(h.DeleteRole))).Methods(http.MethodDelete)
	router.Handle("/rbac/roles/{name}/permissions", unscoped(http.HandlerFunc(h.SyncRolePermissions))).Methods(http.MethodPut)

	// User assignments
	router.Handle("/rbac/users/{id}/roles", manageUsers(http.HandlerFunc(h.AssignRole))).Methods(http.MethodPost)
	router.Handle("/rbac/users/{id}/roles/{name}", manageUsers(http.HandlerFunc(h.RevokeRole))).Methods(http.MethodDelete)
	router.Handle("/rbac/users/{id}/permissions", manageUsers(http.HandlerFunc(h.SyncPermissions))).Methods(http.MethodPut)
}

// Me returns the caller's resolved roles and permissions
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	g := FromContext(r.Context())
	if g == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":     g.UserID(),
		"roles":       g.Principal().RoleNames(),
		"permissions": g.Permissions(),
		"unscoped":    g.Unscoped(),
	})
}

// ListRoles lists all roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, roles)
}

// CreateRole creates a new custom role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string   `json:"name"`
		DisplayName string   `json:"display_name"`
		Description string   `json:"description"`
		Permissions []string `json:"permissions"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" || req.DisplayName == "" {
		httputil.WriteBadRequest(w, "name and display_name are required")
		return
	}

	role := &Role{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Permissions: req.Permissions,
	}
	if err := h.store.CreateRole(r.Context(), role); err != nil {
		writeStoreError(w, err)
		return
	}

	h.onChange()
	h.logAdmin(r, audit.EventTypeAuthzRoleCreate, audit.ResourceTypeRole, role.Name, "role created")
	httputil.WriteJSON(w, http.StatusCreated, role)
}

// DeleteRole deletes a custom role
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.store.DeleteRole(r.Context(), name); err != nil {
		writeStoreError(w, err)
		return
	}
	h.onChange()
	h.logAdmin(r, audit.EventTypeAuthzRoleDelete, audit.ResourceTypeRole, name, "role deleted")
	httputil.WriteNoContent(w)
}

// SyncRolePermissions replaces the permissions of a role
func (h *Handlers) SyncRolePermissions(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req struct {
		Permissions []string `json:"permissions"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if name == RoleSuperAdmin {
		writeStoreError(w, ErrReservedRole)
		return
	}
	if err := h.store.SyncRolePermissions(r.Context(), name, req.Permissions); err != nil {
		writeStoreError(w, err)
		return
	}
	h.onChange()
	h.logAdmin(r, audit.EventTypeAuthzRoleChange, audit.ResourceTypeRole, name, "role permissions replaced")
	httputil.WriteNoContent(w)
}

// AssignRole grants a role to a user
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	crossTenant, err := h.roleIsUnscoped(r, req.Role)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !h.authorizeTarget(w, r, userID, crossTenant) {
		return
	}

	if err := h.store.AssignRole(r.Context(), userID, req.Role); err != nil {
		writeStoreError(w, err)
		return
	}
	h.onChange()
	h.logAdmin(r, audit.EventTypeAuthzPermissionGrant, audit.ResourceTypeUser, strconv.FormatInt(userID, 10), "role "+req.Role+" assigned")
	httputil.WriteNoContent(w)
}

// RevokeRole removes a role from a user
func (h *Handlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	role := mux.Vars(r)["name"]
	crossTenant, err := h.roleIsUnscoped(r, role)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !h.authorizeTarget(w, r, userID, crossTenant) {
		return
	}

	if err := h.store.RevokeRole(r.Context(), userID, role); err != nil {
		writeStoreError(w, err)
		return
	}
	h.onChange()
	h.logAdmin(r, audit.EventTypeAuthzPermissionRevoke, audit.ResourceTypeUser, strconv.FormatInt(userID, 10), "role "+role+" revoked")
	httputil.WriteNoContent(w)
}

// SyncPermissions replaces a user's direct permissions
func (h *Handlers) SyncPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Permissions []string `json:"permissions"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	grantsUnscoped := false
	for _, p := range req.Permissions {
		if p == PermTenantUnscoped {
			grantsUnscoped = true
		}
	}
	if !h.authorizeTarget(w, r, userID, grantsUnscoped) {
		return
	}

	if err := h.store.SyncPermissions(r.Context(), userID, req.Permissions); err != nil {
		writeStoreError(w, err)
		return
	}
	h.onChange()
	h.logAdmin(r, audit.EventTypeAuthzRoleChange, audit.ResourceTypeUser, strconv.FormatInt(userID, 10), "direct permissions replaced")
	httputil.WriteNoContent(w)
}

// roleIsUnscoped reports whether holding the role lifts the company restriction
func (h *Handlers) roleIsUnscoped(r *http.Request, name string) (bool, error) {
	if name == RoleSuperAdmin {
		return true, nil
	}
	role, err := h.store.GetRole(r.Context(), name)
	if err != nil {
		return false, err
	}
	for _, p := range role.Permissions {
		if p == PermTenantUnscoped {
			return true, nil
		}
	}
	return false, nil
}

// authorizeTarget confines company admins to non-admin users of the effective
// company; cross-company grants need the unscoped permission.
func (h *Handlers) authorizeTarget(w http.ResponseWriter, r *http.Request, targetID int64, crossTenantGrant bool) bool {
	g := FromContext(r.Context())
	if g.Unscoped() {
		return true
	}
	if crossTenantGrant {
		_ = audit.LogDenied(r.Context(), audit.ResourceTypeUser, strconv.FormatInt(targetID, 10), "cross-company grant")
		httputil.WriteForbidden(w, "insufficient permissions")
		return false
	}

	target, err := h.store.LoadPrincipal(r.Context(), targetID)
	if err != nil {
		writeStoreError(w, err)
		return false
	}

	companyID := contextkeys.GetTenant(r.Context())
	if companyID == nil {
		companyID = g.CompanyID()
	}
	catalog, err := h.store.LoadCatalog(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return false
	}
	sameCompany := companyID != nil && target.CompanyID != nil && *companyID == *target.CompanyID
	if !sameCompany || HasRole(target, RoleAdmin) || HasRole(target, RoleSuperAdmin) || Resolve(target, catalog).Unscoped() {
		_ = audit.LogDenied(r.Context(), audit.ResourceTypeUser, strconv.FormatInt(targetID, 10), "target outside scope")
		httputil.WriteForbidden(w, "insufficient permissions")
		return false
	}
	return true
}

func (h *Handlers) logAdmin(r *http.Request, eventType audit.EventType, resourceType audit.ResourceType, resourceID, message string) {
	var actor *int64
	if g := FromContext(r.Context()); g != nil {
		id := g.UserID()
		actor = &id
	}
	_ = audit.FromContext(r.Context()).LogAdminAction(r.Context(), eventType, actor, resourceType, resourceID, message)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRoleNotFound), errors.Is(err, ErrUserNotFound):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, ErrReservedRole), errors.Is(err, ErrRoleExists):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, ErrUnknownPermission):
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
