package tenant

import (
	"context"
	"fmt"

	"github.com/platinummonkey/andobill/pkg/rbac"
)

// CompanyLookup is the subset of Service the resolver needs
type CompanyLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
	DefaultActive(ctx context.Context) (*Company, error)
}

// Resolver computes the effective company for a request
type Resolver struct {
	companies CompanyLookup
}

// NewResolver creates a resolver
func NewResolver(companies CompanyLookup) *Resolver {
	return &Resolver{companies: companies}
}

// EffectiveCompanyID returns the company that scopes the request, or nil.
//
// A tenant-scoped principal always gets its own company; session overrides
// are ignored for them. An unscoped principal gets, in order: the company
// selected in its session if it still exists, the active default company,
// its own company, or nil.
func (r *Resolver) EffectiveCompanyID(ctx context.Context, g *rbac.Grants, state SessionState) (*int64, error) {
	if g == nil {
		return nil, nil
	}
	if !g.Unscoped() {
		return copyID(g.CompanyID()), nil
	}

	if state != nil {
		if selected := state.SelectedCompanyID(); selected != nil {
			ok, err := r.companies.Exists(ctx, *selected)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve selected company: %w", err)
			}
			if ok {
				return copyID(selected), nil
			}
		}
	}

	def, err := r.companies.DefaultActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve default company: %w", err)
	}
	if def != nil {
		id := def.ID
		return &id, nil
	}

	return copyID(g.CompanyID()), nil
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
