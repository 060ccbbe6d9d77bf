package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/DIG-Network/dig-propagation-server/internal/logger"
	"github.com/DIG-Network/dig-propagation-server/pkg/storage"
)

// FetchHandler serves committed files read-only. Blobs under data/ are
// streamed exactly as stored (gzip-compressed); callers decompress.
type FetchHandler struct {
	svc *Services
}

// NewFetchHandler creates the fetch surface handler.
func NewFetchHandler(svc *Services) *FetchHandler {
	return &FetchHandler{svc: svc}
}

// Head handles HEAD /fetch/{storeId}/{roothash}/*.
//
// Sets x-file-exists and, when the file is present, x-file-size. The
// response has no body.
func (h *FetchHandler) Head(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")
	rootHash := chi.URLParam(r, "roothash")
	relPath := chi.URLParam(r, "*")

	if !storage.IsStoreID(storeID) || !storage.IsRootHash(rootHash) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	exists, size, err := h.svc.Store.FileInfo(storeID, relPath)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("x-file-exists", boolHeader(exists))
	if exists {
		w.Header().Set("x-file-size", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
}

// Get handles GET /fetch/{storeId}/*.
//
// The file streams with an attachment disposition. If the stream errors
// after headers have been sent, the connection is dropped instead of
// delivering a truncated body with a success status.
func (h *FetchHandler) Get(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")
	relPath := chi.URLParam(r, "*")

	if !storage.IsStoreID(storeID) {
		writeError(w, http.StatusBadRequest, "invalid store id")
		return
	}

	f, size, err := h.svc.Store.Open(storeID, relPath)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid file path")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(filepath.FromSlash(relPath))))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, f)
	h.svc.Metrics.BytesServed(n)
	if err != nil {
		logger.ErrorCtx(r.Context(), "fetch stream failed after headers, dropping connection",
			"store_id", storeID, "filename", relPath, "bytes", n, "error", err)
		// Headers are out; the only honest signal left is a broken
		// connection. chi's Recoverer passes this sentinel through.
		panic(http.ErrAbortHandler)
	}
}
