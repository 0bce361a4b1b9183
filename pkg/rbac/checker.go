package rbac

import (
	"context"
	"fmt"

	"github.com/platinummonkey/andobill/pkg/contextkeys"
)

// HasPermission reports whether p holds name, checking direct grants before
// the union of its roles' grants.
func HasPermission(p *Principal, c Catalog, name string) bool {
	if p == nil {
		return false
	}
	if _, ok := p.DirectPermissions[name]; ok {
		return true
	}
	for role := range p.Roles {
		if _, ok := c[role][name]; ok {
			return true
		}
	}
	return false
}

// HasRole reports whether p was assigned role
func HasRole(p *Principal, role string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Roles[role]
	return ok
}

// IsTenantUnscoped reports whether p may operate across companies
func IsTenantUnscoped(p *Principal, c Catalog) bool {
	return HasPermission(p, c, PermTenantUnscoped)
}

// EffectivePermissions returns the sorted union of direct and role grants
func EffectivePermissions(p *Principal, c Catalog) []string {
	if p == nil {
		return nil
	}
	set := make(map[string]struct{}, len(p.DirectPermissions))
	for name := range p.DirectPermissions {
		set[name] = struct{}{}
	}
	for role := range p.Roles {
		for name := range c[role] {
			set[name] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// Grants is an immutable snapshot of a principal's resolved permissions.
// One snapshot is taken per request so repeated checks agree with each other.
type Grants struct {
	principal   *Principal
	permissions map[string]struct{}
}

// Resolve flattens p's permissions against c
func Resolve(p *Principal, c Catalog) *Grants {
	g := &Grants{principal: p, permissions: make(map[string]struct{})}
	for _, name := range EffectivePermissions(p, c) {
		g.permissions[name] = struct{}{}
	}
	return g
}

// Principal returns the underlying principal
func (g *Grants) Principal() *Principal {
	return g.principal
}

// UserID returns the principal id
func (g *Grants) UserID() int64 {
	return g.principal.ID
}

// CompanyID returns the principal's own company, nil for a company-less super admin
func (g *Grants) CompanyID() *int64 {
	return g.principal.CompanyID
}

// Can reports whether the permission was granted
func (g *Grants) Can(permission string) bool {
	if g == nil {
		return false
	}
	_, ok := g.permissions[permission]
	return ok
}

// Is reports whether the role was assigned
func (g *Grants) Is(role string) bool {
	if g == nil {
		return false
	}
	return HasRole(g.principal, role)
}

// Unscoped reports whether the principal may operate across companies
func (g *Grants) Unscoped() bool {
	return g.Can(PermTenantUnscoped)
}

// Permissions returns the sorted permission names
func (g *Grants) Permissions() []string {
	return sortedKeys(g.permissions)
}

// WithGrants stores the request's permission snapshot
func WithGrants(ctx context.Context, g *Grants) context.Context {
	return context.WithValue(ctx, contextkeys.PrincipalMemoKey, g)
}

// FromContext returns the request's permission snapshot, nil when unauthenticated
func FromContext(ctx context.Context) *Grants {
	if g, ok := ctx.Value(contextkeys.PrincipalMemoKey).(*Grants); ok {
		return g
	}
	return nil
}

// PrincipalLoader loads principals and the role catalog
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID int64) (*Principal, error)
	LoadCatalog(ctx context.Context) (Catalog, error)
}

// Checker resolves permission snapshots, memoized per request context
type Checker struct {
	loader PrincipalLoader
}

// NewChecker creates a new checker
func NewChecker(loader PrincipalLoader) *Checker {
	return &Checker{loader: loader}
}

// Load resolves a fresh snapshot for userID
func (c *Checker) Load(ctx context.Context, userID int64) (*Grants, error) {
	principal, err := c.loader.LoadPrincipal(ctx, userID)
	if err != nil {
		return nil, err
	}
	catalog, err := c.loader.LoadCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load role catalog: %w", err)
	}
	return Resolve(principal, catalog), nil
}

// ForRequest returns the snapshot already on ctx for userID, or loads one and
// returns a derived context carrying it.
func (c *Checker) ForRequest(ctx context.Context, userID int64) (context.Context, *Grants, error) {
	if g := FromContext(ctx); g != nil && g.UserID() == userID {
		return ctx, g, nil
	}
	g, err := c.Load(ctx, userID)
	if err != nil {
		return ctx, nil, err
	}
	return WithGrants(ctx, g), g, nil
}
