package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rvannoy/scrip/internal/account"
)

// AccountStore is the account provisioning and lookup interface. Implemented
// by *account.Store.
type AccountStore interface {
	Create(ctx context.Context, in account.CreateInput) (*account.Account, bool, error)
	Get(ctx context.Context, userID string) (*account.Account, error)
}

// Granter records initial credit grants in the audit log. Implemented by
// *audit.Recorder.
type Granter interface {
	Grant(userID string, amount int)
}

// accountsHandler serves admin-keyed account provisioning and lookup.
type accountsHandler struct {
	store   AccountStore
	granter Granter
}

func newAccountsHandler(store AccountStore, granter Granter) *accountsHandler {
	return &accountsHandler{store: store, granter: granter}
}

// CreateAccount handles POST /api/v1/accounts. Provisioning is idempotent;
// the grant is only audited when the account was actually created.
func (h *accountsHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var in account.CreateInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if in.UserID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "userId is required")
		return
	}

	a, created, err := h.store.Create(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if created {
		h.granter.Grant(a.UserID, account.InitialCredits)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, a)
}

// GetAccount handles GET /api/v1/accounts/{userID}.
func (h *accountsHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	a, err := h.store.Get(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
