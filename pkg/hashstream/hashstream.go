// Package hashstream provides stream transformers that maintain a running
// digest while forwarding bytes unchanged. They compose inside larger
// pipelines: source -> hashing -> optional compressor -> sink.
package hashstream

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Reader forwards every byte of the wrapped reader while feeding it to a
// hash. The digest is valid once the underlying stream has been fully
// consumed (io.EOF observed).
type Reader struct {
	r       io.Reader
	h       hash.Hash
	n       int64
	onChunk func(n int)
}

// NewReader wraps r with the given hash. A nil hash defaults to sha-256.
func NewReader(r io.Reader, h hash.Hash) *Reader {
	if h == nil {
		h = sha256.New()
	}
	return &Reader{r: r, h: h}
}

// OnChunk registers a callback invoked after each successful read with the
// number of bytes forwarded. Used by upload pipelines to observe progress
// (session TTL bumps) without buffering.
func (hr *Reader) OnChunk(fn func(n int)) {
	hr.onChunk = fn
}

func (hr *Reader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
		hr.n += int64(n)
		if hr.onChunk != nil {
			hr.onChunk(n)
		}
	}
	return n, err
}

// BytesRead returns the number of bytes forwarded so far.
func (hr *Reader) BytesRead() int64 {
	return hr.n
}

// Sum returns the current digest.
func (hr *Reader) Sum() []byte {
	return hr.h.Sum(nil)
}

// HexSum returns the current digest as a lowercase hex string.
func (hr *Reader) HexSum() string {
	return hex.EncodeToString(hr.h.Sum(nil))
}

// Writer is the write-side counterpart of Reader: bytes pass through to the
// wrapped writer while feeding the hash.
type Writer struct {
	w io.Writer
	h hash.Hash
	n int64
}

// NewWriter wraps w with the given hash. A nil hash defaults to sha-256.
func NewWriter(w io.Writer, h hash.Hash) *Writer {
	if h == nil {
		h = sha256.New()
	}
	return &Writer{w: w, h: h}
}

func (hw *Writer) Write(p []byte) (int, error) {
	n, err := hw.w.Write(p)
	if n > 0 {
		hw.h.Write(p[:n])
		hw.n += int64(n)
	}
	return n, err
}

// BytesWritten returns the number of bytes forwarded so far.
func (hw *Writer) BytesWritten() int64 {
	return hw.n
}

// HexSum returns the current digest as a lowercase hex string.
func (hw *Writer) HexSum() string {
	return hex.EncodeToString(hw.h.Sum(nil))
}
