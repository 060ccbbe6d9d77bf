package merkle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DIG-Network/dig-propagation-server/internal/logger"
	"github.com/DIG-Network/dig-propagation-server/pkg/datalayer"
	"github.com/DIG-Network/dig-propagation-server/pkg/storage"
)

// Verification errors. All of them imply the session must not survive.
var (
	ErrRootMismatch     = errors.New("commitment root does not match declared root hash")
	ErrRootNotInHistory = errors.New("root hash not present in store root history")
	ErrDigestMismatch   = errors.New("blob digest does not match its data path")
	ErrUnknownFile      = errors.New("no files entry matches the blob digest")
	ErrLeafNotInTree    = errors.New("blob is not a leaf of the committed tree")
	ErrLeavesDoNotHash  = errors.New("recomputed Merkle root does not match declared root")
	ErrEmptyTreeNonZero = errors.New("commitment without leaves must declare the zero root")
)

// Verifier validates root commitments against the external root history and
// uploaded blobs against their session's commitment.
type Verifier struct {
	client    datalayer.MetadataClient
	validator datalayer.TreeValidator
}

// NewVerifier creates a Verifier over the given collaborators.
func NewVerifier(client datalayer.MetadataClient, validator datalayer.TreeValidator) *Verifier {
	return &Verifier{client: client, validator: validator}
}

// VerifyCommitment validates a candidate .dat payload against its expected
// root hash and the store's root history. On success the parsed commitment
// is returned for use by later per-file checks.
func (v *Verifier) VerifyCommitment(ctx context.Context, storeID, rootHash string, payload []byte) (*Commitment, error) {
	rootHash = strings.ToLower(rootHash)

	c, err := ParseCommitment(payload)
	if err != nil {
		return nil, err
	}
	if c.Root != rootHash {
		return nil, fmt.Errorf("%w: document says %s, expected %s", ErrRootMismatch, c.Root, rootHash)
	}

	if len(c.Leaves) == 0 {
		if rootHash != ZeroRoot {
			return nil, ErrEmptyTreeNonZero
		}
	} else {
		computed, err := ComputeRoot(c.Leaves)
		if err != nil {
			return nil, err
		}
		if computed != rootHash {
			return nil, fmt.Errorf("%w: recomputed %s", ErrLeavesDoNotHash, computed)
		}
	}

	ok, err := v.rootInHistory(ctx, storeID, rootHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRootNotInHistory
	}
	return c, nil
}

// rootInHistory checks the external root history, retrying once with a
// cache bust before rejecting: a just-published root may not have reached
// the cached history yet.
func (v *Verifier) rootInHistory(ctx context.Context, storeID, rootHash string) (bool, error) {
	roots, err := v.client.RootHistory(ctx, storeID, false)
	if err != nil {
		return false, err
	}
	if containsRoot(roots, rootHash) {
		return true, nil
	}

	logger.Debug("root not in cached history, retrying with cache bust",
		"store_id", storeID, "root_hash", rootHash)
	roots, err = v.client.RootHistory(ctx, storeID, true)
	if err != nil {
		return false, err
	}
	return containsRoot(roots, rootHash), nil
}

func containsRoot(roots []string, rootHash string) bool {
	for _, r := range roots {
		if strings.EqualFold(r, rootHash) {
			return true
		}
	}
	return false
}

// VerifyFile checks a completed blob against the session's commitment.
//
// dataPath is the declared store-relative path (data/<aa>/<bb>/<rest>),
// observedHex the digest computed while streaming, and tmpDataDir the
// session's staged data/ area for the foreign-tree validator.
func (v *Verifier) VerifyFile(ctx context.Context, c *Commitment, dataPath, observedHex, tmpDataDir string) error {
	expected, err := storage.HashForDataPath(dataPath)
	if err != nil {
		return err
	}
	if !strings.EqualFold(observedHex, expected) {
		return fmt.Errorf("%w: observed %s, path declares %s", ErrDigestMismatch, observedHex, expected)
	}

	hexKey, _, ok := c.EntryBySha256(expected)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, expected)
	}

	valid, err := v.validator.ValidateLeaf(ctx, hexKey, expected, c.Leaves, c.Root, tmpDataDir)
	if err != nil {
		return fmt.Errorf("foreign tree validation failed: %w", err)
	}
	if !valid {
		return fmt.Errorf("%w: key %s", ErrLeafNotInTree, hexKey)
	}
	return nil
}

// LocalTreeValidator validates leaf membership in-process: it rederives the
// entry's leaf hash and requires it to appear among the commitment's leaves,
// whose root was already verified against the declared root hash.
type LocalTreeValidator struct{}

// NewLocalTreeValidator returns the bundled membership validator.
func NewLocalTreeValidator() *LocalTreeValidator {
	return &LocalTreeValidator{}
}

// ValidateLeaf implements datalayer.TreeValidator.
func (LocalTreeValidator) ValidateLeaf(_ context.Context, hexKey, sha256Hex string, leaves []string, _ string, _ string) (bool, error) {
	leaf, err := LeafHash(hexKey, sha256Hex)
	if err != nil {
		return false, err
	}
	for _, l := range leaves {
		if strings.EqualFold(l, leaf) {
			return true, nil
		}
	}
	return false, nil
}
