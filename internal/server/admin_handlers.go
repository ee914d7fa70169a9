package server

import (
	"net/http"
	"strconv"

	"github.com/dgellow/bid-front/internal/crypto"
	"github.com/dgellow/bid-front/internal/idp"
	jsonwriter "github.com/dgellow/bid-front/internal/json"
	"github.com/dgellow/bid-front/internal/log"
	"github.com/dgellow/bid-front/internal/storage"
)

const (
	defaultSignInLimit = 50
	maxSignInLimit     = 500
)

// AdminHandlers serve the admin JSON API. The gate has already checked the
// caller against the admin allow-list.
type AdminHandlers struct {
	ledger storage.Ledger
}

// NewAdminHandlers creates admin handlers over the sign-in ledger
func NewAdminHandlers(ledger storage.Ledger) *AdminHandlers {
	return &AdminHandlers{ledger: ledger}
}

type signInsResponse struct {
	OK      bool             `json:"ok"`
	SignIns []storage.SignIn `json:"signIns"`
}

// SignInsHandler lists the most recent sign-ins on GET /admin/api/sign-ins
func (h *AdminHandlers) SignInsHandler(w http.ResponseWriter, r *http.Request) {
	// With the identity service unconfigured the gate is open; the ledger is not.
	if _, ok := idp.UserFromContext(r.Context()); !ok {
		jsonwriter.WriteAuthRequired(w, crypto.NewRequestID())
		return
	}

	limit := defaultSignInLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonwriter.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSignInLimit)
	}

	signIns, err := h.ledger.RecentSignIns(r.Context(), limit)
	if err != nil {
		log.LogErrorWithFields("admin", "Failed to list sign-ins", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to list sign-ins")
		return
	}
	if signIns == nil {
		signIns = []storage.SignIn{}
	}

	w.Header().Set("Cache-Control", "no-store")
	_ = jsonwriter.Write(w, signInsResponse{OK: true, SignIns: signIns})
}
