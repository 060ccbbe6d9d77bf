package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Layout maps store and session identifiers to filesystem paths.
//
// All paths are rooted at a single base directory:
//
//	<root>/stores/<storeId>/                  committed store
//	<root>/stores/<storeId>/<rootHash>.dat    root commitment document
//	<root>/stores/<storeId>/manifest.dat      append-only list of committed roots
//	<root>/stores/<storeId>/data/<aa>/<bb>/<rest>  content-addressed blob
//	<root>/tmp/sessions/<sessionId>/          per-session staging area
//
// The mapping is pure: two processes given the same root compute identical
// paths. Layout performs no I/O.
type Layout struct {
	root string
}

// hexPattern matches lowercase or uppercase hex strings.
var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// NewLayout creates a Layout rooted at the given base directory.
func NewLayout(root string) *Layout {
	return &Layout{root: root}
}

// Root returns the base directory.
func (l *Layout) Root() string {
	return l.root
}

// StoresRoot returns the directory that holds all committed stores.
func (l *Layout) StoresRoot() string {
	return filepath.Join(l.root, "stores")
}

// SessionsRoot returns the directory under which session temp dirs are created.
func (l *Layout) SessionsRoot() string {
	return filepath.Join(l.root, "tmp", "sessions")
}

// StoreDir returns the directory of a committed store.
func (l *Layout) StoreDir(storeID string) string {
	return filepath.Join(l.StoresRoot(), storeID)
}

// RootCommitmentPath returns the path of a store's <rootHash>.dat document.
func (l *Layout) RootCommitmentPath(storeID, rootHash string) string {
	return filepath.Join(l.StoreDir(storeID), rootHash+".dat")
}

// ManifestPath returns the path of a store's manifest.dat.
func (l *Layout) ManifestPath(storeID string) string {
	return filepath.Join(l.StoreDir(storeID), "manifest.dat")
}

// DataPathForHash returns the store-relative blob path for a hex sha-256:
// data/<aa>/<bb>/<remaining-60-hex>. The hash is canonicalized to lowercase.
func DataPathForHash(hexSum string) (string, error) {
	hexSum = strings.ToLower(hexSum)
	if len(hexSum) != 64 || !hexPattern.MatchString(hexSum) {
		return "", fmt.Errorf("not a 64-hex digest: %q", hexSum)
	}
	return filepath.Join("data", hexSum[0:2], hexSum[2:4], hexSum[4:]), nil
}

// HashForDataPath reverses DataPathForHash: it strips the leading "data"
// element and all separators, returning the concatenated hex digest.
// Accepts both slash-separated wire paths and native filesystem paths.
func HashForDataPath(dataPath string) (string, error) {
	norm := filepath.ToSlash(dataPath)
	parts := strings.Split(norm, "/")
	if len(parts) < 2 || parts[0] != "data" {
		return "", fmt.Errorf("not a data path: %q", dataPath)
	}
	sum := strings.ToLower(strings.Join(parts[1:], ""))
	if len(sum) != 64 || !hexPattern.MatchString(sum) {
		return "", fmt.Errorf("data path %q does not encode a 64-hex digest", dataPath)
	}
	return sum, nil
}

// IsStoreID reports whether s is a well-formed 64-hex store identifier.
func IsStoreID(s string) bool {
	return len(s) == 64 && hexPattern.MatchString(s)
}

// IsRootHash reports whether s is a well-formed 64-hex root hash.
func IsRootHash(s string) bool {
	return len(s) == 64 && hexPattern.MatchString(s)
}

// CleanRelativePath normalizes a client-supplied relative file path and
// rejects anything that would escape the directory it is joined to.
func CleanRelativePath(p string) (string, error) {
	norm := filepath.ToSlash(p)
	if norm == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.HasPrefix(norm, "/") {
		return "", fmt.Errorf("absolute path not allowed: %q", p)
	}
	cleaned := filepath.Clean(filepath.FromSlash(norm))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes store root: %q", p)
	}
	return cleaned, nil
}
