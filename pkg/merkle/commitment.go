// Package merkle validates root-commitment documents and the membership of
// uploaded blobs in their declared trees. The trees are foreign: they were
// built by the writer, and this server only verifies.
package merkle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ZeroRoot is the root hash of an empty commitment (no leaves).
const ZeroRoot = "0000000000000000000000000000000000000000000000000000000000000000"

// Parsing errors.
var (
	ErrPaddedPayload = errors.New("commitment payload has leading or trailing whitespace")
	ErrDuplicateKey  = errors.New("duplicate key in files map")
)

// FileEntry describes one file of a commitment: the leaf key hash and the
// sha-256 of the stored blob's uncompressed content.
type FileEntry struct {
	Hash   string `json:"hash"`
	Sha256 string `json:"sha256"`
}

// Commitment is a parsed root-commitment (.dat) document.
//
// Root is the declared Merkle root. Leaves is the ordered sequence of leaf
// hashes used to recompute it; an empty sequence means the all-zero root.
// Files maps an opaque hex key to the file's leaf hash and content digest.
type Commitment struct {
	Root   string               `json:"root"`
	Leaves []string             `json:"leaves"`
	Files  map[string]FileEntry `json:"files"`
}

// ParseCommitment strictly parses a .dat payload.
//
// Rules:
//   - leading/trailing whitespace around the document is rejected
//   - unknown fields are ignored
//   - duplicate keys inside "files" are rejected
//   - all hex fields are canonicalized to lowercase
func ParseCommitment(payload []byte) (*Commitment, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty commitment payload")
	}
	if !bytes.Equal(bytes.TrimSpace(payload), payload) {
		return nil, ErrPaddedPayload
	}

	// First pass pulls the raw files object so duplicate keys can be
	// detected; encoding/json's map decoding silently keeps the last one.
	var raw struct {
		Root   string          `json:"root"`
		Leaves []string        `json:"leaves"`
		Files  json.RawMessage `json:"files"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("malformed commitment document: %w", err)
	}

	c := &Commitment{
		Root:  strings.ToLower(raw.Root),
		Files: make(map[string]FileEntry),
	}
	for _, leaf := range raw.Leaves {
		c.Leaves = append(c.Leaves, strings.ToLower(leaf))
	}

	if len(raw.Files) > 0 {
		if err := decodeFiles(raw.Files, c.Files); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// decodeFiles walks the files object token by token, rejecting duplicates.
func decodeFiles(raw json.RawMessage, dest map[string]FileEntry) error {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("malformed files map: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("files must be an object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("malformed files map: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("files key is not a string")
		}
		key = strings.ToLower(key)
		if _, exists := dest[key]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}

		var entry FileEntry
		if err := dec.Decode(&entry); err != nil {
			return fmt.Errorf("malformed files entry %s: %w", key, err)
		}
		entry.Hash = strings.ToLower(entry.Hash)
		entry.Sha256 = strings.ToLower(entry.Sha256)
		dest[key] = entry
	}
	return nil
}

// EntryBySha256 returns the (hexKey, entry) whose content digest equals
// sha256Hex, or ok=false when no entry matches.
func (c *Commitment) EntryBySha256(sha256Hex string) (string, FileEntry, bool) {
	sha256Hex = strings.ToLower(sha256Hex)
	for key, entry := range c.Files {
		if entry.Sha256 == sha256Hex {
			return key, entry, true
		}
	}
	return "", FileEntry{}, false
}
