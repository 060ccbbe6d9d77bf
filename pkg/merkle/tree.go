package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeRoot recomputes the Merkle root over an ordered sequence of 32-byte
// leaf hashes (hex-encoded). Interior nodes are sha-256 over the
// concatenation of their children; an odd node at any level is promoted
// unchanged. An empty sequence yields ZeroRoot.
func ComputeRoot(leaves []string) (string, error) {
	if len(leaves) == 0 {
		return ZeroRoot, nil
	}

	level := make([][]byte, 0, len(leaves))
	for i, leaf := range leaves {
		b, err := hex.DecodeString(strings.ToLower(leaf))
		if err != nil || len(b) != sha256.Size {
			return "", fmt.Errorf("leaf %d is not a 32-byte hex hash: %q", i, leaf)
		}
		level = append(level, b)
	}

	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			h := sha256.New()
			h.Write(level[i])
			h.Write(level[i+1])
			next = append(next, h.Sum(nil))
		}
		level = next
	}
	return hex.EncodeToString(level[0]), nil
}

// LeafHash derives the leaf hash that commits a files entry to the tree:
// sha-256 over the entry's key bytes followed by its content digest bytes.
func LeafHash(hexKey, sha256Hex string) (string, error) {
	key, err := hex.DecodeString(strings.ToLower(hexKey))
	if err != nil {
		return "", fmt.Errorf("files key is not hex: %q", hexKey)
	}
	sum, err := hex.DecodeString(strings.ToLower(sha256Hex))
	if err != nil || len(sum) != sha256.Size {
		return "", fmt.Errorf("content digest is not a 32-byte hex hash: %q", sha256Hex)
	}
	h := sha256.New()
	h.Write(key)
	h.Write(sum)
	return hex.EncodeToString(h.Sum(nil)), nil
}
