// Package rbac implements the permission and role model.
//
// Roles (super_admin, admin, user and any custom role) own a flat set of
// named permissions. A principal's effective permissions are its direct
// grants plus the union of its roles' grants; there is no role hierarchy.
// Holding manage_companies makes a principal tenant-unscoped: it may operate
// on any company instead of only its own.
//
// Permission resolution is a pure function over a Principal and a Catalog:
//
//	rbac.HasPermission(principal, catalog, rbac.PermManageInvoices)
//
// For HTTP requests, Checker.ForRequest loads the principal and catalog once
// and stores an immutable Grants snapshot on the context, so every check in
// that request sees the same answer. RequirePermission and RequireRole read
// that snapshot.
//
// The super_admin role is reserved: Store.DeleteRole refuses it with
// ErrReservedRole.
package rbac
