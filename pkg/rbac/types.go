package rbac

import (
	"errors"
	"sort"
	"time"
)

// Permission names
const (
	PermManageCompanies = "manage_companies"
	PermManageUsers     = "manage_users"
	PermManageSettings  = "manage_settings"
	PermManageInvoices  = "manage_invoices"
	PermManageCustomers = "manage_customers"
	PermManageProducts  = "manage_products"
	PermManageOffers    = "manage_offers"
	PermManagePayments  = "manage_payments"
	PermManageExpenses  = "manage_expenses"
	PermManageDocuments = "manage_documents"
	PermManageWarehouse = "manage_warehouse"
	PermViewReports     = "view_reports"
	PermExportDATEV     = "export_datev"
)

// PermTenantUnscoped is the capability that lifts the single-company restriction
const PermTenantUnscoped = PermManageCompanies

// Built-in role names
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleUser       = "user"
)

// Account status values shared by users and companies
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

var (
	// ErrReservedRole is returned when deleting or renaming a reserved role
	ErrReservedRole = errors.New("role is reserved")
	// ErrRoleNotFound is returned when a role name does not exist
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleExists is returned when creating a role whose name is taken
	ErrRoleExists = errors.New("role already exists")
	// ErrUnknownPermission is returned when a permission name is not registered
	ErrUnknownPermission = errors.New("unknown permission")
	// ErrUserNotFound is returned when a principal cannot be loaded
	ErrUserNotFound = errors.New("user not found")
)

// AllPermissions returns every registered permission name
func AllPermissions() []string {
	return []string{
		PermManageCompanies,
		PermManageUsers,
		PermManageSettings,
		PermManageInvoices,
		PermManageCustomers,
		PermManageProducts,
		PermManageOffers,
		PermManagePayments,
		PermManageExpenses,
		PermManageDocuments,
		PermManageWarehouse,
		PermViewReports,
		PermExportDATEV,
	}
}

// Role is a named bundle of permissions
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
	IsReserved  bool      `json:"is_reserved"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DefaultRoles returns the built-in role definitions
func DefaultRoles() []Role {
	all := AllPermissions()
	admin := make([]string, 0, len(all)-1)
	for _, p := range all {
		if p != PermManageCompanies {
			admin = append(admin, p)
		}
	}

	return []Role{
		{
			Name:        RoleSuperAdmin,
			DisplayName: "Super Admin",
			Description: "Operates across all companies",
			IsReserved:  true,
			Permissions: all,
		},
		{
			Name:        RoleAdmin,
			DisplayName: "Administrator",
			Description: "Full access within the own company",
			Permissions: admin,
		},
		{
			Name:        RoleUser,
			DisplayName: "Benutzer",
			Description: "Day-to-day invoicing within the own company",
			Permissions: []string{
				PermManageInvoices,
				PermManageCustomers,
				PermManageProducts,
				PermManageOffers,
				PermManagePayments,
				PermManageDocuments,
				PermViewReports,
			},
		},
	}
}

// Principal is an authenticated user with its role and direct permission edges
type Principal struct {
	ID                int64
	Name              string
	Email             string
	CompanyID         *int64
	Status            string
	Roles             map[string]struct{}
	DirectPermissions map[string]struct{}
}

// NewPrincipal builds a principal from role and permission name lists
func NewPrincipal(id int64, companyID *int64, roles []string, direct []string) *Principal {
	p := &Principal{
		ID:                id,
		CompanyID:         companyID,
		Status:            StatusActive,
		Roles:             make(map[string]struct{}, len(roles)),
		DirectPermissions: make(map[string]struct{}, len(direct)),
	}
	for _, r := range roles {
		p.Roles[r] = struct{}{}
	}
	for _, d := range direct {
		p.DirectPermissions[d] = struct{}{}
	}
	return p
}

// RoleNames returns the principal's roles sorted by name
func (p *Principal) RoleNames() []string {
	return sortedKeys(p.Roles)
}

// IsActive reports whether the account may sign in
func (p *Principal) IsActive() bool {
	return p.Status == StatusActive
}

// Catalog maps role names to their permission sets
type Catalog map[string]map[string]struct{}

// NewCatalog builds a catalog from role definitions
func NewCatalog(roles []Role) Catalog {
	c := make(Catalog, len(roles))
	for _, r := range roles {
		c.Grant(r.Name, r.Permissions...)
	}
	return c
}

// Grant adds permissions to a role, creating the role entry if needed
func (c Catalog) Grant(role string, permissions ...string) {
	set, ok := c[role]
	if !ok {
		set = make(map[string]struct{}, len(permissions))
		c[role] = set
	}
	for _, p := range permissions {
		set[p] = struct{}{}
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
