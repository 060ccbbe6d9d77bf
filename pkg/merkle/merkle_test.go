package merkle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// historyStub serves a fixed root history, tracking cache-bust calls.
type historyStub struct {
	roots     []string
	bustRoots []string
	bustCalls int
}

func (h *historyStub) RootHistory(_ context.Context, _ string, bust bool) ([]string, error) {
	if bust {
		h.bustCalls++
		if h.bustRoots != nil {
			return h.bustRoots, nil
		}
	}
	return h.roots, nil
}

func (h *historyStub) HasWritePermission(context.Context, string, string) (bool, error) {
	return true, nil
}

func (h *historyStub) RegenerateManifest(context.Context, string) error { return nil }

func (h *historyStub) CacheStoreCreationHeight(context.Context, string) error { return nil }

// buildCommitment constructs a consistent .dat payload for one file keyed
// by hexKey with content digest contentSha.
func buildCommitment(t *testing.T, hexKey, contentSha string) (root string, payload []byte) {
	t.Helper()
	leaf, err := LeafHash(hexKey, contentSha)
	require.NoError(t, err)
	root, err = ComputeRoot([]string{leaf})
	require.NoError(t, err)

	doc := map[string]any{
		"root":   root,
		"leaves": []string{leaf},
		"files": map[string]any{
			hexKey: map[string]string{"hash": leaf, "sha256": contentSha},
		},
	}
	payload, err = json.Marshal(doc)
	require.NoError(t, err)
	return root, payload
}

func shaHex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func TestComputeRoot_Empty(t *testing.T) {
	root, err := ComputeRoot(nil)
	require.NoError(t, err)
	require.Equal(t, ZeroRoot, root)
}

func TestComputeRoot_SingleLeaf(t *testing.T) {
	leaf := shaHex("leaf")
	root, err := ComputeRoot([]string{leaf})
	require.NoError(t, err)
	// A single leaf is promoted all the way to the root.
	require.Equal(t, leaf, root)
}

func TestComputeRoot_TwoLeaves(t *testing.T) {
	a, b := shaHex("a"), shaHex("b")
	root, err := ComputeRoot([]string{a, b})
	require.NoError(t, err)

	ab, _ := hex.DecodeString(a)
	bb, _ := hex.DecodeString(b)
	h := sha256.New()
	h.Write(ab)
	h.Write(bb)
	require.Equal(t, hex.EncodeToString(h.Sum(nil)), root)
}

func TestComputeRoot_OddLeafPromoted(t *testing.T) {
	a, b, c := shaHex("a"), shaHex("b"), shaHex("c")
	root3, err := ComputeRoot([]string{a, b, c})
	require.NoError(t, err)

	// Hand-derive: parent(a,b) then parent(parent, c).
	pair := func(x, y string) string {
		xb, _ := hex.DecodeString(x)
		yb, _ := hex.DecodeString(y)
		h := sha256.New()
		h.Write(xb)
		h.Write(yb)
		return hex.EncodeToString(h.Sum(nil))
	}
	require.Equal(t, pair(pair(a, b), c), root3)
}

func TestComputeRoot_RejectsBadLeaf(t *testing.T) {
	_, err := ComputeRoot([]string{"not-hex"})
	require.Error(t, err)
	_, err = ComputeRoot([]string{"abcd"})
	require.Error(t, err)
}

func TestParseCommitment_Strict(t *testing.T) {
	_, payload := buildCommitment(t, "00ff", shaHex("content"))

	c, err := ParseCommitment(payload)
	require.NoError(t, err)
	require.Len(t, c.Leaves, 1)
	require.Len(t, c.Files, 1)
}

func TestParseCommitment_RejectsPadding(t *testing.T) {
	_, payload := buildCommitment(t, "00ff", shaHex("content"))
	_, err := ParseCommitment(append([]byte("  "), payload...))
	require.ErrorIs(t, err, ErrPaddedPayload)
	_, err = ParseCommitment(append(payload, '\n'))
	require.ErrorIs(t, err, ErrPaddedPayload)
}

func TestParseCommitment_RejectsDuplicateFileKeys(t *testing.T) {
	payload := []byte(`{"root":"` + ZeroRoot + `","leaves":[],"files":{` +
		`"aa":{"hash":"00","sha256":"00"},` +
		`"aa":{"hash":"11","sha256":"11"}}}`)
	_, err := ParseCommitment(payload)
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestParseCommitment_IgnoresUnknownFields(t *testing.T) {
	payload := []byte(`{"root":"` + ZeroRoot + `","leaves":[],"files":{},"extra":{"nested":1}}`)
	c, err := ParseCommitment(payload)
	require.NoError(t, err)
	require.Equal(t, ZeroRoot, c.Root)
}

func TestParseCommitment_CanonicalizesCase(t *testing.T) {
	payload := []byte(`{"root":"` + strings.ToUpper(ZeroRoot) + `","leaves":[],"files":{}}`)
	c, err := ParseCommitment(payload)
	require.NoError(t, err)
	require.Equal(t, ZeroRoot, c.Root)
}

func TestVerifyCommitment_HappyPath(t *testing.T) {
	root, payload := buildCommitment(t, "00ff", shaHex("content"))
	v := NewVerifier(&historyStub{roots: []string{root}}, NewLocalTreeValidator())

	c, err := v.VerifyCommitment(context.Background(), strings.Repeat("a", 64), root, payload)
	require.NoError(t, err)
	require.Equal(t, root, c.Root)
}

func TestVerifyCommitment_RootFieldMismatch(t *testing.T) {
	_, payload := buildCommitment(t, "00ff", shaHex("content"))
	v := NewVerifier(&historyStub{}, NewLocalTreeValidator())

	_, err := v.VerifyCommitment(context.Background(), strings.Repeat("a", 64), strings.Repeat("b", 64), payload)
	require.ErrorIs(t, err, ErrRootMismatch)
}

func TestVerifyCommitment_EmptyLeavesRequireZeroRoot(t *testing.T) {
	v := NewVerifier(&historyStub{roots: []string{ZeroRoot}}, NewLocalTreeValidator())

	payload := []byte(`{"root":"` + ZeroRoot + `","leaves":[],"files":{}}`)
	_, err := v.VerifyCommitment(context.Background(), strings.Repeat("a", 64), ZeroRoot, payload)
	require.NoError(t, err)

	badRoot := strings.Repeat("b", 64)
	payload = []byte(`{"root":"` + badRoot + `","leaves":[],"files":{}}`)
	_, err = v.VerifyCommitment(context.Background(), strings.Repeat("a", 64), badRoot, payload)
	require.ErrorIs(t, err, ErrEmptyTreeNonZero)
}

func TestVerifyCommitment_LeavesMustRecompute(t *testing.T) {
	// Declared root is a valid hex hash but not the recomputation of leaves.
	leaf := shaHex("leaf")
	fake := shaHex("different")
	payload := []byte(`{"root":"` + fake + `","leaves":["` + leaf + `"],"files":{}}`)

	v := NewVerifier(&historyStub{roots: []string{fake}}, NewLocalTreeValidator())
	_, err := v.VerifyCommitment(context.Background(), strings.Repeat("a", 64), fake, payload)
	require.ErrorIs(t, err, ErrLeavesDoNotHash)
}

func TestVerifyCommitment_HistoryCacheBustRetry(t *testing.T) {
	root, payload := buildCommitment(t, "00ff", shaHex("content"))

	// Cached history is stale; the bust retry sees the root.
	h := &historyStub{roots: []string{}, bustRoots: []string{root}}
	v := NewVerifier(h, NewLocalTreeValidator())

	_, err := v.VerifyCommitment(context.Background(), strings.Repeat("a", 64), root, payload)
	require.NoError(t, err)
	require.Equal(t, 1, h.bustCalls)
}

func TestVerifyCommitment_RootNotInHistory(t *testing.T) {
	root, payload := buildCommitment(t, "00ff", shaHex("content"))
	v := NewVerifier(&historyStub{roots: []string{strings.Repeat("c", 64)}}, NewLocalTreeValidator())

	_, err := v.VerifyCommitment(context.Background(), strings.Repeat("a", 64), root, payload)
	require.ErrorIs(t, err, ErrRootNotInHistory)
}

func TestVerifyFile_HappyPath(t *testing.T) {
	contentSha := shaHex("blob content")
	root, payload := buildCommitment(t, "00ff", contentSha)
	v := NewVerifier(&historyStub{roots: []string{root}}, NewLocalTreeValidator())

	c, err := v.VerifyCommitment(context.Background(), strings.Repeat("a", 64), root, payload)
	require.NoError(t, err)

	dataPath := "data/" + contentSha[0:2] + "/" + contentSha[2:4] + "/" + contentSha[4:]
	require.NoError(t, v.VerifyFile(context.Background(), c, dataPath, contentSha, t.TempDir()))
}

func TestVerifyFile_DigestMismatch(t *testing.T) {
	contentSha := shaHex("blob content")
	root, payload := buildCommitment(t, "00ff", contentSha)
	v := NewVerifier(&historyStub{roots: []string{root}}, NewLocalTreeValidator())

	c, err := v.VerifyCommitment(context.Background(), strings.Repeat("a", 64), root, payload)
	require.NoError(t, err)

	dataPath := "data/" + contentSha[0:2] + "/" + contentSha[2:4] + "/" + contentSha[4:]
	err = v.VerifyFile(context.Background(), c, dataPath, shaHex("tampered"), t.TempDir())
	require.ErrorIs(t, err, ErrDigestMismatch)
}

func TestVerifyFile_UnknownDigest(t *testing.T) {
	root, payload := buildCommitment(t, "00ff", shaHex("known"))
	v := NewVerifier(&historyStub{roots: []string{root}}, NewLocalTreeValidator())

	c, err := v.VerifyCommitment(context.Background(), strings.Repeat("a", 64), root, payload)
	require.NoError(t, err)

	stranger := shaHex("stranger")
	dataPath := "data/" + stranger[0:2] + "/" + stranger[2:4] + "/" + stranger[4:]
	err = v.VerifyFile(context.Background(), c, dataPath, stranger, t.TempDir())
	require.ErrorIs(t, err, ErrUnknownFile)
}

func TestLocalTreeValidator_RejectsForeignLeaf(t *testing.T) {
	lv := NewLocalTreeValidator()
	ok, err := lv.ValidateLeaf(context.Background(), "00ff", shaHex("content"), []string{shaHex("other")}, "", "")
	require.NoError(t, err)
	require.False(t, ok)
}
