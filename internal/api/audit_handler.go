package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rvannoy/scrip/internal/audit"
)

// AuditReader lists ledger audit events. Implemented by *audit.Store.
type AuditReader interface {
	List(ctx context.Context, q audit.Query) ([]*audit.Event, error)
}

type auditHandler struct {
	store AuditReader
}

func newAuditHandler(store AuditReader) *auditHandler {
	return &auditHandler{store: store}
}

// ListEvents handles GET /api/v1/admin/audit. Filters come from query
// parameters; results are newest first.
func (h *auditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{
		UserID:      r.URL.Query().Get("userId"),
		ExecutionID: r.URL.Query().Get("executionId"),
		Kind:        r.URL.Query().Get("kind"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 1000 {
			writeError(w, http.StatusBadRequest, "validation_error", "limit must be an integer between 1 and 1000")
			return
		}
		q.Limit = limit
	}

	events, err := h.store.List(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if events == nil {
		events = []*audit.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
