package api

import (
	"net/http"

	"github.com/platinummonkey/andobill/pkg/contextkeys"
	"github.com/platinummonkey/andobill/pkg/httputil"
	"github.com/platinummonkey/andobill/pkg/policy"
	"github.com/platinummonkey/andobill/pkg/rbac"
)

// dashboardStats serves the cached summary of the effective company. The
// router guarantees an effective company.
func (s *Server) dashboardStats(w http.ResponseWriter, r *http.Request) {
	grants := rbac.FromContext(r.Context())
	companyID := contextkeys.GetTenant(r.Context())
	if grants == nil || companyID == nil {
		httputil.WriteForbidden(w, "no company context")
		return
	}
	if err := s.Gate.Authorize(r.Context(), policy.EntityInvoice, policy.ActionViewAny, nil); err != nil {
		httputil.WriteForbidden(w, err.Error())
		return
	}

	stats, err := s.dashboard.Stats(r.Context(), grants.UserID(), *companyID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
