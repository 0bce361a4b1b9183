package tenant

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/contextkeys"
	"github.com/platinummonkey/andobill/pkg/httputil"
	"github.com/platinummonkey/andobill/pkg/policy"
	"github.com/platinummonkey/andobill/pkg/rbac"
)

// Handlers provides HTTP handlers for companies, company switching and
// settings
type Handlers struct {
	service  Service
	settings *SettingsRepository
	switcher *Switcher
	gate     *policy.Gate
	onChange func(companyID int64)
}

// NewHandlers creates tenant handlers
func NewHandlers(service Service, settings *SettingsRepository, switcher *Switcher, gate *policy.Gate) *Handlers {
	return &Handlers{service: service, settings: settings, switcher: switcher, gate: gate, onChange: func(int64) {}}
}

// OnChange registers fn to run after a company's status or settings change
func (h *Handlers) OnChange(fn func(companyID int64)) *Handlers {
	h.onChange = fn
	return h
}

// RegisterRoutes registers company and settings routes. The router must
// already run authentication and the tenant context middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	unscoped := rbac.RequirePermission(rbac.PermTenantUnscoped)
	manageSettings := rbac.RequirePermission(rbac.PermManageSettings)

	router.Handle("/companies", unscoped(http.HandlerFunc(h.ListCompanies))).Methods(http.MethodGet)
	router.Handle("/companies", unscoped(http.HandlerFunc(h.CreateCompany))).Methods(http.MethodPost)
	router.Handle("/companies/switch", unscoped(http.HandlerFunc(h.SwitchCompany))).Methods(http.MethodPost)
	router.Handle("/companies/switch", unscoped(http.HandlerFunc(h.ClearSwitch))).Methods(http.MethodDelete)
	router.HandleFunc("/companies/{id:[0-9]+}", h.GetCompany).Methods(http.MethodGet)
	router.Handle("/companies/{id:[0-9]+}/status", unscoped(http.HandlerFunc(h.SetStatus))).Methods(http.MethodPut)
	router.Handle("/companies/{id:[0-9]+}/default", unscoped(http.HandlerFunc(h.SetDefault))).Methods(http.MethodPut)

	router.HandleFunc("/settings", h.ListSettings).Methods(http.MethodGet)
	router.Handle("/settings/{key}", manageSettings(http.HandlerFunc(h.PutSetting))).Methods(http.MethodPut)
	router.Handle("/settings/{key}", manageSettings(http.HandlerFunc(h.DeleteSetting))).Methods(http.MethodDelete)
}

// ListCompanies lists all companies
func (h *Handlers) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, companies)
}

// CreateCompany creates a company
func (h *Handlers) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req CreateCompanyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if req.Status != "" && !req.Status.Valid() {
		httputil.WriteBadRequest(w, "invalid status")
		return
	}

	company := &Company{Name: req.Name, Status: req.Status}
	if err := h.service.Create(r.Context(), company); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	h.logAdmin(r, audit.EventTypeTenantCreate, company.ID, "company created")
	httputil.WriteJSON(w, http.StatusCreated, company)
}

// GetCompany returns a company the caller may view
func (h *Handlers) GetCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	company, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.gate.Authorize(r.Context(), policy.EntityCompany, policy.ActionView, company); err != nil {
		// do not reveal that another company exists
		httputil.WriteNotFound(w, ErrCompanyNotFound.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, company)
}

// SetStatus activates or deactivates a company
func (h *Handlers) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Status Status `json:"status"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		httputil.WriteBadRequest(w, "invalid status")
		return
	}
	if err := h.service.SetStatus(r.Context(), id, req.Status); err != nil {
		writeServiceError(w, err)
		return
	}
	h.onChange(id)
	h.logAdmin(r, audit.EventTypeTenantStatusChange, id, "company status set to "+string(req.Status))
	httputil.WriteNoContent(w)
}

// SetDefault makes a company the default for unscoped principals
func (h *Handlers) SetDefault(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.SetDefault(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	h.logAdmin(r, audit.EventTypeTenantDefaultChange, id, "default company changed")
	httputil.WriteNoContent(w)
}

// SwitchCompany sets the session's company override
func (h *Handlers) SwitchCompany(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}
	var req struct {
		CompanyID int64 `json:"company_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.switcher.Switch(r.Context(), rbac.FromContext(r.Context()), sess, req.CompanyID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// ClearSwitch removes the session's company override
func (h *Handlers) ClearSwitch(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}
	result, err := h.switcher.Clear(r.Context(), rbac.FromContext(r.Context()), sess)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// ListSettings returns the effective settings of the effective company
func (h *Handlers) ListSettings(w http.ResponseWriter, r *http.Request) {
	companyID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	values, err := h.settings.EffectiveAll(r.Context(), companyID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"company_id": companyID,
		"settings":   values,
	})
}

// PutSetting stores a typed setting for the effective company
func (h *Handlers) PutSetting(w http.ResponseWriter, r *http.Request) {
	companyID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	key := mux.Vars(r)["key"]

	var value TypedValue
	if !httputil.ParseJSONOrError(w, r, &value) {
		return
	}

	before, err := h.settings.Effective(r.Context(), companyID, key)
	if err != nil && !errors.Is(err, ErrSettingNotFound) {
		httputil.WriteInternalError(w, err)
		return
	}
	if err := h.settings.Set(r.Context(), companyID, key, value); err != nil {
		writeServiceError(w, err)
		return
	}

	h.onChange(companyID)

	changes := &audit.ChangeDetails{After: map[string]interface{}{key: value.Interface()}}
	if before.Type != "" {
		changes.Before = map[string]interface{}{key: before.Interface()}
	}
	_ = audit.FromContext(r.Context()).LogConfiguration(r.Context(), audit.EventTypeConfigSettingChange,
		actorID(r), key, changes, "setting updated")

	httputil.WriteJSON(w, http.StatusOK, value)
}

// DeleteSetting removes a stored setting so the default applies again
func (h *Handlers) DeleteSetting(w http.ResponseWriter, r *http.Request) {
	companyID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	key := mux.Vars(r)["key"]
	if err := h.settings.Delete(r.Context(), companyID, key); err != nil {
		writeServiceError(w, err)
		return
	}
	h.onChange(companyID)
	_ = audit.FromContext(r.Context()).LogConfiguration(r.Context(), audit.EventTypeConfigSettingDelete,
		actorID(r), key, nil, "setting deleted")
	httputil.WriteNoContent(w)
}

func requireTenant(w http.ResponseWriter, r *http.Request) (int64, bool) {
	companyID := contextkeys.GetTenant(r.Context())
	if companyID == nil {
		httputil.WriteForbidden(w, "no company selected")
		return 0, false
	}
	return *companyID, true
}

func sessionFromRequest(w http.ResponseWriter, r *http.Request) (SessionOverride, bool) {
	sess, ok := r.Context().Value(contextkeys.SessionKey).(SessionOverride)
	if !ok {
		httputil.WriteUnauthorized(w, "session required")
		return nil, false
	}
	return sess, true
}

func actorID(r *http.Request) *int64 {
	if g := rbac.FromContext(r.Context()); g != nil {
		id := g.UserID()
		return &id
	}
	return nil
}

func (h *Handlers) logAdmin(r *http.Request, eventType audit.EventType, companyID int64, message string) {
	_ = audit.FromContext(r.Context()).LogAdminAction(r.Context(), eventType, actorID(r),
		audit.ResourceTypeCompany, strconv.FormatInt(companyID, 10), message)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCompanyNotFound), errors.Is(err, ErrSettingNotFound):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, ErrSwitchForbidden), errors.Is(err, policy.ErrAuthorizationDenied):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, ErrInvalidSetting):
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
