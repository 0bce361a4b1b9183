package tenant

import (
	"context"
	"fmt"
	"strconv"

	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/observability"
	"github.com/platinummonkey/andobill/pkg/policy"
	"github.com/platinummonkey/andobill/pkg/rbac"
)

// ReloadFull tells the client to reload the whole page after a switch
const ReloadFull = "full"

// ErrSwitchForbidden is returned when a tenant-scoped principal tries to
// switch. It matches policy.ErrAuthorizationDenied.
var ErrSwitchForbidden = fmt.Errorf("switching companies requires manage_companies: %w", policy.ErrAuthorizationDenied)

// SwitchResult is returned to the client after a switch or clear
type SwitchResult struct {
	CompanyID *int64 `json:"company_id"`
	Reload    string `json:"reload"`
}

// Switcher changes the session company override for unscoped principals
type Switcher struct {
	companies CompanyLookup
	metrics   *observability.Metrics
}

// NewSwitcher creates a switcher; metrics may be nil
func NewSwitcher(companies CompanyLookup, metrics *observability.Metrics) *Switcher {
	return &Switcher{companies: companies, metrics: metrics}
}

// Switch stores companyID as the session override
func (s *Switcher) Switch(ctx context.Context, g *rbac.Grants, sess SessionOverride, companyID int64) (*SwitchResult, error) {
	if !g.Can(rbac.PermManageCompanies) {
		s.metrics.RecordTenantSwitch("denied")
		_ = audit.LogDenied(ctx, audit.ResourceTypeCompany, strconv.FormatInt(companyID, 10), "company switch without manage_companies")
		return nil, ErrSwitchForbidden
	}

	ok, err := s.companies.Exists(ctx, companyID)
	if err != nil {
		s.metrics.RecordTenantSwitch("error")
		return nil, err
	}
	if !ok {
		s.metrics.RecordTenantSwitch("not_found")
		return nil, ErrCompanyNotFound
	}

	id := companyID
	sess.SetSelectedCompanyID(&id)
	s.metrics.RecordTenantSwitch("success")

	uid := g.UserID()
	_ = audit.FromContext(ctx).LogAdminAction(ctx, audit.EventTypeTenantSwitch, &uid,
		audit.ResourceTypeCompany, strconv.FormatInt(companyID, 10), "switched active company")

	return &SwitchResult{CompanyID: copyID(&id), Reload: ReloadFull}, nil
}

// Clear removes the session override so the default company applies again
func (s *Switcher) Clear(ctx context.Context, g *rbac.Grants, sess SessionOverride) (*SwitchResult, error) {
	if !g.Can(rbac.PermManageCompanies) {
		s.metrics.RecordTenantSwitch("denied")
		return nil, ErrSwitchForbidden
	}

	sess.SetSelectedCompanyID(nil)
	s.metrics.RecordTenantSwitch("cleared")

	uid := g.UserID()
	_ = audit.FromContext(ctx).LogAdminAction(ctx, audit.EventTypeTenantSwitchCleared, &uid,
		audit.ResourceTypeCompany, "", "cleared active company")

	return &SwitchResult{Reload: ReloadFull}, nil
}
