package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/andobill/pkg/contextkeys"
	"github.com/platinummonkey/andobill/pkg/httputil"
)

// Handlers provides HTTP handlers for the audit trail
type Handlers struct {
	store *DBLogger
}

// NewHandlers creates new audit handlers
func NewHandlers(store *DBLogger) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers audit log routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/events", h.listEvents).Methods(http.MethodGet)
}

// listEvents handles GET /audit/events, always scoped to the effective company
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)

	companyID := contextkeys.GetTenant(r.Context())
	if companyID == nil {
		httputil.WriteForbidden(w, "no company selected")
		return
	}
	filter.CompanyID = companyID

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func parseFilter(r *http.Request) SearchFilter {
	q := r.URL.Query()
	filter := SearchFilter{Limit: 50}

	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.EndTime = &t
		}
	}
	if v := q.Get("user_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.UserID = &id
		}
	}
	for _, et := range q["event_type"] {
		filter.EventTypes = append(filter.EventTypes, EventType(et))
	}
	if v := q.Get("status"); v != "" {
		status := EventStatus(v)
		filter.Status = &status
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	return filter
}
