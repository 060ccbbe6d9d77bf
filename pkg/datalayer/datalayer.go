// Package datalayer defines the server's view of its external collaborators:
// the signing/key library and the datastore metadata module. The upload
// pipeline depends only on these interfaces; process wiring decides whether
// they are served by the bundled implementations or by a remote service.
package datalayer

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the metadata module could not be reached within
// its deadline. Callers treat it as a failure for the affected operation,
// not as a reason to tear the session down.
var ErrUnavailable = errors.New("datalayer unavailable")

// KeyVerifier checks a writer's signature over an issued nonce.
type KeyVerifier interface {
	// VerifyKeyOwnership reports whether sigHex is a valid signature by
	// publicKeyHex over the nonce challenge.
	VerifyKeyOwnership(nonce, sigHex, publicKeyHex string) bool
}

// MetadataClient is the datastore metadata module: root history, write
// permissions, and manifest lifecycle for a store.
type MetadataClient interface {
	// RootHistory returns the known root commitment hashes for a store,
	// newest last. bustCache forces a refresh of any upstream caching.
	RootHistory(ctx context.Context, storeID string, bustCache bool) ([]string, error)

	// HasWritePermission reports whether publicKeyHex may write to the store.
	HasWritePermission(ctx context.Context, storeID, publicKeyHex string) (bool, error)

	// RegenerateManifest asks the module to rebuild the store's manifest
	// after a commit. Idempotent.
	RegenerateManifest(ctx context.Context, storeID string) error

	// CacheStoreCreationHeight records the chain height at which the store
	// was first observed, so later syncs can anchor on it.
	CacheStoreCreationHeight(ctx context.Context, storeID string) error
}

// TreeValidator decides whether a completed blob participates in the
// committed foreign tree. The tree was built elsewhere; the server only
// verifies membership.
type TreeValidator interface {
	// ValidateLeaf returns true only if the files entry identified by
	// hexKey, with content digest sha256Hex, is a leaf of the tree rooted
	// at rootHash. tmpDataDir points at the session's staged data/ area
	// for validators that need to inspect sibling blobs.
	ValidateLeaf(ctx context.Context, hexKey, sha256Hex string, leaves []string, rootHash, tmpDataDir string) (bool, error)
}
