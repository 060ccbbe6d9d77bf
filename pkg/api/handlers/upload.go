package handlers

import (
	"compress/gzip"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DIG-Network/dig-propagation-server/internal/logger"
	"github.com/DIG-Network/dig-propagation-server/pkg/datalayer"
	"github.com/DIG-Network/dig-propagation-server/pkg/hashstream"
	"github.com/DIG-Network/dig-propagation-server/pkg/noncecache"
	"github.com/DIG-Network/dig-propagation-server/pkg/session"
	"github.com/DIG-Network/dig-propagation-server/pkg/storage"
)

// UploadHandler implements the session-based upload pipeline:
// start, per-file nonce, signed PUT, commit, abort.
type UploadHandler struct {
	svc *Services
}

// NewUploadHandler creates the upload pipeline handler.
func NewUploadHandler(svc *Services) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// startResponse is returned by a successful session start.
type startResponse struct {
	SessionID string `json:"sessionId"`
}

// Start handles POST /upload/{storeId}.
//
// The body is a multipart stream containing a single <rootHash>.dat root
// commitment document. If the store does not exist on disk yet, the request
// must carry basic auth matching the configured admin credentials. The .dat
// is staged into a fresh session and validated against the store's root
// history before the session id is returned.
func (h *UploadHandler) Start(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")
	if !storage.IsStoreID(storeID) {
		writeError(w, http.StatusBadRequest, "invalid store id")
		return
	}

	// Creating a store is privileged; writing into an existing one is
	// authorized per file by signature instead.
	if !h.svc.Store.StoreExists(storeID) {
		if !h.checkAdminAuth(r) {
			writeError(w, http.StatusUnauthorized, "store does not exist and admin credentials are missing or invalid")
			return
		}
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart body")
		return
	}

	part, err := nextFilePart(mr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart body contains no file")
		return
	}
	defer part.Close()

	filename := filepath.Base(part.FileName())
	if !strings.HasSuffix(filename, ".dat") {
		writeError(w, http.StatusBadRequest, "expected a .dat root commitment file")
		return
	}
	rootHash := strings.ToLower(strings.TrimSuffix(filename, ".dat"))
	if !storage.IsRootHash(rootHash) {
		writeError(w, http.StatusBadRequest, "root hash is not a 64-hex digest")
		return
	}
	if h.svc.Store.HasRootHash(storeID, rootHash) {
		writeError(w, http.StatusBadRequest, "root hash already committed")
		return
	}

	s, err := h.svc.Sessions.Create(storeID)
	if err != nil {
		logger.ErrorCtx(r.Context(), "failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	datPath := filepath.Join(s.TmpDir(), rootHash+".dat")
	if err := stageFile(datPath, part, h.svc.MaxFileSize); err != nil {
		h.svc.Sessions.Destroy(s.ID())
		if errors.Is(err, errFileTooLarge) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf(
				"root commitment exceeds the maximum file size of %d bytes", h.svc.MaxFileSize))
			return
		}
		writeError(w, http.StatusBadRequest, "failed to stage root commitment")
		return
	}

	payload, err := os.ReadFile(datPath)
	if err != nil {
		h.svc.Sessions.Destroy(s.ID())
		writeError(w, http.StatusInternalServerError, "failed to read staged root commitment")
		return
	}

	ctx, cancel := h.svc.externalCtx(r.Context())
	defer cancel()
	commitment, err := h.svc.Verifier.VerifyCommitment(ctx, storeID, rootHash, payload)
	if err != nil {
		h.svc.Sessions.Destroy(s.ID())
		if errors.Is(err, datalayer.ErrUnavailable) {
			writeError(w, http.StatusInternalServerError, "root history unavailable")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("root commitment rejected: %v", err))
		return
	}

	if err := s.SetCommitment(rootHash, commitment); err != nil {
		h.svc.Sessions.Destroy(s.ID())
		writeError(w, http.StatusInternalServerError, "failed to bind root commitment to session")
		return
	}

	h.svc.Metrics.SessionStarted()
	logger.InfoCtx(r.Context(), "upload session started",
		"store_id", storeID, "session_id", s.ID(), "root_hash", rootHash)
	writeJSON(w, http.StatusOK, startResponse{SessionID: s.ID()})
}

// Nonce handles HEAD /upload/{storeId}/{sessionId}/*.
//
// Reports via x-file-exists whether the file is already staged or committed;
// when it is not, a fresh single-use nonce is issued and returned in
// x-nonce. The response has no body.
func (h *UploadHandler) Nonce(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")
	sessionID := chi.URLParam(r, "sessionId")
	filename := chi.URLParam(r, "*")

	if !storage.IsStoreID(storeID) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	cleaned, err := storage.CleanRelativePath(filename)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s, err := h.svc.Sessions.Get(sessionID)
	if err != nil || s.StoreID() != storeID {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	exists := h.fileStagedOrCommitted(s, storeID, cleaned)
	w.Header().Set("x-file-exists", boolHeader(exists))
	if !exists {
		nonce, err := h.svc.Nonces.Issue(noncecache.Key(storeID, sessionID, filename))
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("x-nonce", nonce)
		h.svc.Metrics.NonceIssued()
	}
	w.WriteHeader(http.StatusOK)
}

// Put handles PUT /upload/{storeId}/{sessionId}/*.
//
// Checks run in a fixed order: required headers, nonce consumption,
// signature, session existence, write permission. The body then streams
// through a digest observer (which bumps the session TTL and refreshes the
// owner-cache entry per chunk) and, for data/ blobs, a gzip compressor,
// into the session's staging area. A data/ blob that fails Merkle
// verification destroys the whole session.
func (h *UploadHandler) Put(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	storeID := chi.URLParam(r, "storeId")
	sessionID := chi.URLParam(r, "sessionId")
	filename := chi.URLParam(r, "*")

	if !storage.IsStoreID(storeID) {
		writeError(w, http.StatusBadRequest, "invalid store id")
		return
	}
	cleaned, err := storage.CleanRelativePath(filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file path")
		return
	}

	nonce := r.Header.Get("x-nonce")
	publicKey := r.Header.Get("x-public-key")
	signature := r.Header.Get("x-key-ownership-sig")
	if nonce == "" || publicKey == "" || signature == "" {
		writeError(w, http.StatusBadRequest, "missing x-nonce, x-public-key or x-key-ownership-sig header")
		return
	}

	if !h.svc.Nonces.ValidateAndConsume(noncecache.Key(storeID, sessionID, filename), nonce) {
		h.svc.Metrics.NonceFailed()
		writeError(w, http.StatusUnauthorized, "invalid or expired nonce")
		return
	}

	if !h.svc.Keys.VerifyKeyOwnership(nonce, signature, publicKey) {
		// A forged signature against a session that already holds an
		// accepted root commitment is an integrity failure: the session
		// and everything staged under it are discarded.
		if s, err := h.svc.Sessions.Get(sessionID); err == nil && s.StoreID() == storeID && s.Commitment() != nil {
			if h.svc.Sessions.Destroy(sessionID) {
				h.svc.Metrics.SessionEnded()
			}
			logger.WarnCtx(r.Context(), "signature verification failed, session destroyed",
				"store_id", storeID, "session_id", sessionID, "filename", cleaned)
		}
		writeError(w, http.StatusUnauthorized, "invalid key ownership signature")
		return
	}

	s, err := h.svc.Sessions.Get(sessionID)
	if err != nil || s.StoreID() != storeID {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	permCtx, cancel := h.svc.externalCtx(r.Context())
	allowed, err := h.svc.Owners.IsOwner(permCtx, publicKey, storeID)
	cancel()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "write permission check failed")
		return
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "public key has no write permission for this store")
		return
	}

	body := r.Body
	if h.svc.MaxFileSize > 0 {
		body = http.MaxBytesReader(w, r.Body, h.svc.MaxFileSize)
	}

	hr := hashstream.NewReader(body, nil)
	hr.OnChunk(func(int) {
		h.svc.Sessions.Bump(sessionID)
		h.svc.Owners.Refresh(publicKey, storeID)
	})

	isData := strings.HasPrefix(filepath.ToSlash(cleaned), "data/")
	dst := filepath.Join(s.TmpDir(), cleaned)
	if _, err := writeStream(dst, hr, isData); err != nil {
		os.Remove(dst)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf(
				"file exceeds the maximum size of %d bytes", tooLarge.Limit))
			return
		}
		logger.ErrorCtx(r.Context(), "upload stream failed",
			"store_id", storeID, "session_id", sessionID, "filename", cleaned, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store uploaded file")
		return
	}

	if isData {
		commitment := s.Commitment()
		if commitment == nil {
			h.svc.Sessions.Destroy(sessionID)
			writeError(w, http.StatusBadRequest, "session has no accepted root commitment")
			return
		}
		verifyCtx, cancel := h.svc.externalCtx(r.Context())
		err := h.svc.Verifier.VerifyFile(verifyCtx, commitment,
			filepath.ToSlash(cleaned), hr.HexSum(), filepath.Join(s.TmpDir(), "data"))
		cancel()
		if err != nil {
			h.svc.Sessions.Destroy(sessionID)
			h.svc.Metrics.SessionEnded()
			logger.WarnCtx(r.Context(), "integrity verification failed, session destroyed",
				"store_id", storeID, "session_id", sessionID, "filename", cleaned, "error", err)
			writeError(w, http.StatusBadRequest, fmt.Sprintf("integrity verification failed: %v", err))
			return
		}
	}

	h.svc.Metrics.BytesIngested(hr.BytesRead())
	h.svc.Metrics.ObservePutDuration(time.Since(start).Seconds())
	logger.InfoCtx(r.Context(), "file uploaded",
		"store_id", storeID, "session_id", sessionID,
		"filename", cleaned, "bytes", hr.BytesRead())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"filename": filepath.ToSlash(cleaned),
		"size":     hr.BytesRead(),
	})
}

// Commit handles POST /commit/{storeId}/{sessionId}.
//
// Preconditions: the session's .dat is staged, and every blob the
// commitment's files mapping references is either staged or already
// committed (a changed delta may re-upload only new blobs). The staging
// area is then merged into the canonical store without overwriting, the
// manifest updated, and the session destroyed whatever the outcome.
func (h *UploadHandler) Commit(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")
	sessionID := chi.URLParam(r, "sessionId")

	if !storage.IsStoreID(storeID) {
		writeError(w, http.StatusBadRequest, "invalid store id")
		return
	}

	s, err := h.svc.Sessions.Get(sessionID)
	if err != nil || s.StoreID() != storeID {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	rootHash := s.RootHash()
	commitment := s.Commitment()
	if rootHash == "" || commitment == nil {
		writeError(w, http.StatusBadRequest, "session has no accepted root commitment")
		return
	}
	if _, err := os.Stat(filepath.Join(s.TmpDir(), rootHash+".dat")); err != nil {
		writeError(w, http.StatusBadRequest, "root commitment file missing from session")
		return
	}

	if missing := h.missingBlob(s, storeID); missing != "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("commitment references blob not uploaded: %s", missing))
		return
	}

	err = h.svc.Sessions.Finalize(sessionID, func(s *session.Session) error {
		if err := h.svc.Store.Merge(r.Context(), s.TmpDir(), storeID); err != nil {
			return err
		}
		return h.svc.Store.AppendManifest(storeID, rootHash)
	})
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	h.svc.Metrics.SessionEnded()
	if err != nil {
		logger.ErrorCtx(r.Context(), "commit merge failed",
			"store_id", storeID, "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to commit session")
		return
	}

	// Post-commit metadata housekeeping is best effort: the files are
	// already published.
	ctx, cancel := h.svc.externalCtx(r.Context())
	defer cancel()
	if err := h.svc.Metadata.CacheStoreCreationHeight(ctx, storeID); err != nil {
		logger.WarnCtx(r.Context(), "failed to cache store creation height",
			"store_id", storeID, "error", err)
	}
	if err := h.svc.Metadata.RegenerateManifest(ctx, storeID); err != nil {
		logger.WarnCtx(r.Context(), "manifest regeneration failed",
			"store_id", storeID, "error", err)
	}

	h.svc.Metrics.CommitRecorded()
	logger.InfoCtx(r.Context(), "session committed",
		"store_id", storeID, "session_id", sessionID, "root_hash", rootHash)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"storeId":  storeID,
		"rootHash": rootHash,
	})
}

// Abort handles POST /abort/{storeId}/{sessionId}. The session's staging
// area is discarded; committed content is untouched.
func (h *UploadHandler) Abort(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")
	sessionID := chi.URLParam(r, "sessionId")

	s, err := h.svc.Sessions.Get(sessionID)
	if err != nil || s.StoreID() != storeID {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	h.svc.Sessions.Destroy(sessionID)
	h.svc.Metrics.AbortRecorded()
	h.svc.Metrics.SessionEnded()
	logger.InfoCtx(r.Context(), "session aborted",
		"store_id", storeID, "session_id", sessionID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"aborted": sessionID})
}

// checkAdminAuth verifies the request's basic auth against the configured
// admin credentials. An unset admin password refuses everything.
func (h *UploadHandler) checkAdminAuth(r *http.Request) bool {
	if h.svc.AdminPassword == "" {
		return false
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.svc.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.svc.AdminPassword)) == 1
	return userOK && passOK
}

// fileStagedOrCommitted reports whether the file already exists in the
// session's staging area or in the committed store.
func (h *UploadHandler) fileStagedOrCommitted(s *session.Session, storeID, cleaned string) bool {
	if info, err := os.Stat(filepath.Join(s.TmpDir(), cleaned)); err == nil && info.Mode().IsRegular() {
		return true
	}
	exists, _, err := h.svc.Store.FileInfo(storeID, cleaned)
	return err == nil && exists
}

// missingBlob returns the data path of the first commitment files entry
// that is neither staged nor committed, or "" when all blobs are present.
func (h *UploadHandler) missingBlob(s *session.Session, storeID string) string {
	c := s.Commitment()
	for _, entry := range c.Files {
		dataPath, err := storage.DataPathForHash(entry.Sha256)
		if err != nil {
			return entry.Sha256
		}
		if !h.fileStagedOrCommitted(s, storeID, dataPath) {
			return filepath.ToSlash(dataPath)
		}
	}
	return ""
}

// nextFilePart advances the multipart reader to the first part carrying a
// filename.
func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

// errFileTooLarge reports a staged payload over the configured size cap.
var errFileTooLarge = errors.New("file exceeds the maximum allowed size")

// stageFile streams a reader into path, creating parent directories on
// demand. maxSize caps the number of bytes accepted (0 = unlimited); an
// oversized payload is removed and reported as errFileTooLarge rather
// than truncated.
func stageFile(path string, r io.Reader, maxSize int64) error {
	limited := r
	if maxSize > 0 {
		limited = io.LimitReader(r, maxSize+1)
	}
	n, err := writeStream(path, limited, false)
	if err != nil {
		return err
	}
	if maxSize > 0 && n > maxSize {
		os.Remove(path)
		return errFileTooLarge
	}
	return nil
}

// writeStream writes a reader to path, gzip-compressing when compress is
// set. Parent directories are created on demand. Returns the number of
// uncompressed bytes consumed from the reader.
func writeStream(path string, r io.Reader, compress bool) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		w = gz
	}

	n, err := io.Copy(w, r)
	if err != nil {
		if gz != nil {
			gz.Close()
		}
		f.Close()
		return n, err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return n, err
		}
	}
	return n, f.Close()
}
