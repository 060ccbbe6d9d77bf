package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DIG-Network/dig-propagation-server/pkg/storage"
)

// StoreHandler answers existence probes for whole stores.
type StoreHandler struct {
	svc *Services
}

// NewStoreHandler creates the store probe handler.
func NewStoreHandler(svc *Services) *StoreHandler {
	return &StoreHandler{svc: svc}
}

// Head handles HEAD /{storeId}.
//
// Sets x-store-exists, and when ?hasRootHash=<hex> is supplied also
// x-has-root-hash. The response has no body.
func (h *StoreHandler) Head(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")
	if !storage.IsStoreID(storeID) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("x-store-exists", boolHeader(h.svc.Store.StoreExists(storeID)))

	if rootHash := r.URL.Query().Get("hasRootHash"); rootHash != "" {
		if !storage.IsRootHash(rootHash) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("x-has-root-hash", boolHeader(h.svc.Store.HasRootHash(storeID, rootHash)))
	}

	w.WriteHeader(http.StatusOK)
}

func boolHeader(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
