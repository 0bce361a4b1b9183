package policy

import "github.com/platinummonkey/andobill/pkg/rbac"

// TenantPolicy allows unscoped principals, and otherwise requires the
// resource to belong to the effective company. Listing and creating are
// allowed whenever there is an effective company to scope them to.
func TenantPolicy() Policy {
	return PolicyFunc(func(sub Subject, action Action, res Resource) (bool, string) {
		if sub.Grants == nil {
			return false, "unauthenticated"
		}
		if sub.Grants.Unscoped() {
			return true, ""
		}
		if sub.CompanyID == nil {
			return false, "no effective company"
		}
		if res == nil {
			return action == ActionViewAny || action == ActionCreate, "resource required"
		}
		if !sameCompany(res.OwnerCompanyID(), sub.CompanyID) {
			return false, "resource belongs to another company"
		}
		return true, ""
	})
}

// RoleGatedPolicy is TenantPolicy where mutations also need role
func RoleGatedPolicy(role string) Policy {
	base := TenantPolicy()
	return PolicyFunc(func(sub Subject, action Action, res Resource) (bool, string) {
		ok, reason := base.Allow(sub, action, res)
		if !ok {
			return false, reason
		}
		if action.IsMutation() && !sub.Grants.Unscoped() && !sub.Grants.Is(role) {
			return false, "requires role " + role
		}
		return true, ""
	})
}

// UserTarget is the user being acted upon
type UserTarget struct {
	ID        int64
	CompanyID *int64
	Roles     []string
}

// OwnerCompanyID implements Resource
func (u UserTarget) OwnerCompanyID() *int64 { return u.CompanyID }

func (u UserTarget) hasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u UserTarget) privileged() bool {
	return u.hasRole(rbac.RoleAdmin) || u.hasRole(rbac.RoleSuperAdmin)
}

// UserPolicy guards user accounts. Users may view and update themselves and
// nobody deletes themselves. Unscoped principals may do anything else.
// Within the effective company colleagues are visible to everyone, changing
// them requires manage_users, and administrators can only be changed by an
// unscoped principal.
func UserPolicy() Policy {
	tenant := TenantPolicy()
	return PolicyFunc(func(sub Subject, action Action, res Resource) (bool, string) {
		g := sub.Grants
		if g == nil {
			return false, "unauthenticated"
		}

		target, _ := res.(UserTarget)
		self := res != nil && target.ID == g.UserID()

		if self && action == ActionDelete {
			return false, "cannot delete own account"
		}
		if self && (action == ActionView || action == ActionUpdate) {
			return true, ""
		}
		if g.Unscoped() {
			return true, ""
		}

		if ok, reason := tenant.Allow(sub, action, res); !ok {
			return false, reason
		}
		if action.IsMutation() && !g.Can(rbac.PermManageUsers) {
			return false, "requires manage_users"
		}
		if res != nil && (action == ActionUpdate || action == ActionDelete) && target.privileged() {
			return false, "cannot modify an administrator"
		}
		return true, ""
	})
}

// CompanyRef is the company being acted upon
type CompanyRef struct {
	ID int64
}

// OwnerCompanyID implements Resource
func (c CompanyRef) OwnerCompanyID() *int64 { return &c.ID }

// CompanyPolicy guards companies themselves. Anyone may view the company
// they work in and holders of manage_settings may update it; listing,
// creating, deleting, and touching other companies require an unscoped
// principal.
func CompanyPolicy() Policy {
	return PolicyFunc(func(sub Subject, action Action, res Resource) (bool, string) {
		g := sub.Grants
		if g == nil {
			return false, "unauthenticated"
		}
		if g.Unscoped() {
			return true, ""
		}
		switch action {
		case ActionView:
			if res != nil && sameCompany(res.OwnerCompanyID(), sub.CompanyID) {
				return true, ""
			}
		case ActionUpdate:
			if res != nil && sameCompany(res.OwnerCompanyID(), sub.CompanyID) && g.Can(rbac.PermManageSettings) {
				return true, ""
			}
		}
		return false, "requires manage_companies"
	})
}
