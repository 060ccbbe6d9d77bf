package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/DIG-Network/dig-propagation-server/internal/logger"
)

// Sentinel errors returned by store operations.
var (
	// ErrStoreNotFound indicates the store directory does not exist.
	ErrStoreNotFound = errors.New("store not found")

	// ErrFileNotFound indicates a committed file does not exist.
	ErrFileNotFound = errors.New("file not found")
)

// Store performs all filesystem operations on the canonical store tree.
//
// Committed files are shared-read and mutated only through Merge, which
// never overwrites: blob names are their content hashes, so a name match
// is a content match and the extant file wins.
type Store struct {
	layout *Layout
}

// NewStore creates a Store over the given layout, creating the base
// directories if they are missing.
func NewStore(layout *Layout) (*Store, error) {
	for _, dir := range []string{layout.StoresRoot(), layout.SessionsRoot()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return &Store{layout: layout}, nil
}

// Layout returns the path layout the store was built over.
func (s *Store) Layout() *Layout {
	return s.layout
}

// StoreExists reports whether the store directory exists on disk.
func (s *Store) StoreExists(storeID string) bool {
	info, err := os.Stat(s.layout.StoreDir(storeID))
	return err == nil && info.IsDir()
}

// HasRootHash reports whether <rootHash>.dat has been committed to the store.
func (s *Store) HasRootHash(storeID, rootHash string) bool {
	info, err := os.Stat(s.layout.RootCommitmentPath(storeID, rootHash))
	return err == nil && info.Mode().IsRegular()
}

// FileInfo returns (exists, size) for a committed file addressed by its
// store-relative path.
func (s *Store) FileInfo(storeID, relPath string) (bool, int64, error) {
	cleaned, err := CleanRelativePath(relPath)
	if err != nil {
		return false, 0, err
	}
	info, err := os.Stat(filepath.Join(s.layout.StoreDir(storeID), cleaned))
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	if !info.Mode().IsRegular() {
		return false, 0, nil
	}
	return true, info.Size(), nil
}

// Open returns a reader over a committed file. Blobs under data/ are served
// as stored (gzip-compressed); callers decompress.
func (s *Store) Open(storeID, relPath string) (io.ReadCloser, int64, error) {
	cleaned, err := CleanRelativePath(relPath)
	if err != nil {
		return nil, 0, err
	}
	path := filepath.Join(s.layout.StoreDir(storeID), cleaned)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrFileNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, ErrFileNotFound
	}
	return f, info.Size(), nil
}

// Merge recursively copies a session's staging directory into the store
// directory. Existing destination files are silently preserved: blob names
// are content hashes, so equality by name is equality by content. The store
// directory is created if absent.
func (s *Store) Merge(ctx context.Context, tmpDir, storeID string) error {
	dst := s.layout.StoreDir(storeID)
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	return filepath.WalkDir(tmpDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(tmpDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if _, err := os.Stat(target); err == nil {
			// Content-addressed dedup: the extant file wins.
			logger.Debug("merge skipping existing file", "store_id", storeID, "filename", rel)
			return nil
		}
		return copyFile(path, target)
	})
}

// copyFile copies src to dst through a temporary name in the destination
// directory, then renames it into place so readers never observe a partial
// file.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".merge-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// AppendManifest adds rootHash to the store's manifest.dat, one hash per
// line, deduplicated and rewritten atomically.
func (s *Store) AppendManifest(storeID, rootHash string) error {
	path := s.layout.ManifestPath(storeID)

	existing, err := s.ReadManifest(storeID)
	if err != nil {
		return err
	}
	for _, h := range existing {
		if h == rootHash {
			return nil
		}
	}
	existing = append(existing, rootHash)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	for _, h := range existing {
		fmt.Fprintln(w, h)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadManifest returns the committed root hashes listed in manifest.dat,
// oldest first. A missing manifest yields an empty list.
func (s *Store) ReadManifest(storeID string) ([]string, error) {
	f, err := os.Open(s.layout.ManifestPath(storeID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var roots []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			roots = append(roots, line)
		}
	}
	return roots, scanner.Err()
}

// ListStores returns the IDs of all committed stores, sorted.
func (s *Store) ListStores() ([]string, error) {
	entries, err := os.ReadDir(s.layout.StoresRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && IsStoreID(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DiskUsage returns the total size in bytes of all files under a store.
func (s *Store) DiskUsage(storeID string) (int64, error) {
	var total int64
	err := filepath.WalkDir(s.layout.StoreDir(storeID), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrStoreNotFound
		}
		return 0, err
	}
	return total, nil
}

// CleanStaleSessions removes every directory under the sessions root.
// Called once on startup: any staging directory present before the process
// accepted its first request belongs to a session that did not survive a
// previous run.
func (s *Store) CleanStaleSessions() error {
	entries, err := os.ReadDir(s.layout.SessionsRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		path := filepath.Join(s.layout.SessionsRoot(), e.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove stale session dir %s: %w", path, err)
		}
		logger.Info("removed stale session directory", "path", path)
	}
	return nil
}
