package hashstream

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"
)

func TestReader_ForwardsAndHashes(t *testing.T) {
	payload := []byte("the quick brown fox")
	hr := NewReader(bytes.NewReader(payload), nil)

	got, err := io.ReadAll(hr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("bytes were not forwarded unchanged")
	}

	want := sha256.Sum256(payload)
	if hr.HexSum() != hex.EncodeToString(want[:]) {
		t.Errorf("digest mismatch: %s", hr.HexSum())
	}
	if hr.BytesRead() != int64(len(payload)) {
		t.Errorf("expected %d bytes read, got %d", len(payload), hr.BytesRead())
	}
}

func TestReader_OnChunk(t *testing.T) {
	var total int
	hr := NewReader(strings.NewReader(strings.Repeat("x", 1000)), nil)
	hr.OnChunk(func(n int) { total += n })

	if _, err := io.Copy(io.Discard, hr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1000 {
		t.Errorf("chunk observer saw %d bytes, want 1000", total)
	}
}

func TestReader_ComposesWithGzip(t *testing.T) {
	payload := []byte("compress me, hash me")

	// source -> hashing -> gzip -> sink, the PUT pipeline shape.
	var sink bytes.Buffer
	hr := NewReader(bytes.NewReader(payload), nil)
	gz := gzip.NewWriter(&sink)
	if _, err := io.Copy(gz, hr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The digest covers the pre-compression bytes.
	want := sha256.Sum256(payload)
	if hr.HexSum() != hex.EncodeToString(want[:]) {
		t.Errorf("digest should cover uncompressed bytes")
	}

	// And the sink round-trips.
	zr, err := gzip.NewReader(&sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("gzip round trip mismatch")
	}
}

func TestWriter_ForwardsAndHashes(t *testing.T) {
	var sink bytes.Buffer
	hw := NewWriter(&sink, nil)

	payload := []byte("write side")
	if _, err := hw.Write(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bytes.Equal(sink.Bytes(), payload) {
		t.Errorf("bytes were not forwarded unchanged")
	}
	want := sha256.Sum256(payload)
	if hw.HexSum() != hex.EncodeToString(want[:]) {
		t.Errorf("digest mismatch: %s", hw.HexSum())
	}
}

func TestReader_EmptyStream(t *testing.T) {
	hr := NewReader(strings.NewReader(""), nil)
	if _, err := io.Copy(io.Discard, hr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := sha256.Sum256(nil)
	if hr.HexSum() != hex.EncodeToString(want[:]) {
		t.Errorf("empty stream digest mismatch")
	}
}
