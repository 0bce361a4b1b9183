// Package policy decides whether the current principal may act on a resource.
//
// Every tenant-owned entity is guarded by one of a few shapes:
//
//   - tenant equality: unscoped principals, or the resource's company equals
//     the request's effective company
//   - role gated: tenant equality, and mutations additionally need the admin
//     role unless the principal is unscoped
//   - user: self service plus manage_users within the tenant, with guards
//     against privilege escalation
//   - company: listing and lifecycle changes are reserved for unscoped
//     principals
//
// Handlers call Gate.Authorize; a denial is a *DeniedError that matches
// ErrAuthorizationDenied with errors.Is and is recorded in the audit trail.
//
//	if err := gate.Authorize(ctx, policy.EntityInvoice, policy.ActionUpdate, inv); err != nil {
//		return err
//	}
package policy
