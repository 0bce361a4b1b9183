package api

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/platinummonkey/andobill/pkg/aggregates"
	"github.com/platinummonkey/andobill/pkg/contextkeys"
	"github.com/platinummonkey/andobill/pkg/httputil"
	"github.com/platinummonkey/andobill/pkg/policy"
	"github.com/platinummonkey/andobill/pkg/rbac"
	"github.com/platinummonkey/andobill/pkg/session"
	"github.com/platinummonkey/andobill/pkg/tenant"
)

// sharedEntities are the entities whose list and create abilities are
// exposed to the frontend
var sharedEntities = []string{
	policy.EntityInvoice,
	policy.EntityCustomer,
	policy.EntityProduct,
	policy.EntityOffer,
	policy.EntityPayment,
	policy.EntityDocument,
	policy.EntityWarehouse,
	policy.EntityExpense,
	policy.EntityExpenseCategory,
	policy.EntityUser,
	policy.EntityCompany,
}

// SharedUser is the authenticated user as seen by the frontend
type SharedUser struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CompanyID *int64 `json:"company_id"`
}

// SharedCompany is the effective company
type SharedCompany struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// SharedState is attached to every rendered page
type SharedState struct {
	User        SharedUser                 `json:"user"`
	Company     *SharedCompany             `json:"company"`
	Roles       []string                   `json:"roles"`
	Permissions []string                   `json:"permissions"`
	Can         map[string]map[string]bool `json:"can"`
	Flash       map[string]string          `json:"flash,omitempty"`
}

func (s *Server) shared(w http.ResponseWriter, r *http.Request) {
	grants := rbac.FromContext(r.Context())
	if grants == nil {
		httputil.WriteUnauthorized(w, "unauthenticated")
		return
	}
	companyID := contextkeys.GetTenant(r.Context())

	key := aggregates.Key{PrincipalID: grants.UserID(), TenantID: companyID, Name: aggregates.NameShared}
	v, err := s.Cache.GetOrCompute(r.Context(), key, func(context.Context) (interface{}, error) {
		return s.buildShared(r.Context(), grants, companyID)
	})
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	// Copy so the flash never leaks into the cached value
	state := *v.(*SharedState)
	if sess := session.FromContext(r.Context()); sess != nil {
		if msg, ok := sess.PopFlash("status"); ok {
			state.Flash = map[string]string{"status": msg}
		}
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

// buildShared takes the request context because gate decisions read the
// principal and tenant from it
func (s *Server) buildShared(ctx context.Context, grants *rbac.Grants, companyID *int64) (*SharedState, error) {
	p := grants.Principal()
	state := &SharedState{
		User: SharedUser{
			ID:        p.ID,
			Name:      p.Name,
			Email:     p.Email,
			CompanyID: p.CompanyID,
		},
		Permissions: grants.Permissions(),
		Can:         make(map[string]map[string]bool, len(sharedEntities)),
	}
	for role := range p.Roles {
		state.Roles = append(state.Roles, role)
	}
	sort.Strings(state.Roles)

	if companyID != nil {
		company, err := s.Companies.Get(ctx, *companyID)
		switch {
		case errors.Is(err, tenant.ErrCompanyNotFound):
		case err != nil:
			return nil, err
		default:
			state.Company = &SharedCompany{ID: company.ID, Name: company.Name, Status: string(company.Status)}
		}
	}

	for _, entity := range sharedEntities {
		state.Can[entity] = map[string]bool{
			string(policy.ActionViewAny): s.Gate.Allows(ctx, entity, policy.ActionViewAny, nil),
			string(policy.ActionCreate):  s.Gate.Allows(ctx, entity, policy.ActionCreate, nil),
		}
	}
	return state, nil
}
