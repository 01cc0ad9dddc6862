// Package ociblob implements the content-addressed, atomically-published
// blob sink an OCI layout is built from: a single temp file exclusively
// owned by one writer, digested while written, and renamed into
// blobs/sha256/<digest> only on successful completion.
package ociblob

import (
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/pgzip"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// Blob identifies a published blob by its SHA-256 and size.
type Blob struct {
	Digest digest.Digest
	Size   int64
}

// Layer is a published gzip blob plus the digest of its uncompressed
// content, the value OCI image configs record as a diff_id.
type Layer struct {
	Blob               Blob
	UncompressedDigest digest.Digest
}

const tmpBlobName = ".tmpblob"

// BlobWriter is a single-writer, append-only sink that digests everything
// written to it and, on Complete, atomically publishes the result under
// blobs/sha256 in its OCI directory. A BlobWriter exclusively owns its temp
// file for its entire lifetime: Complete or Abort must be the last call.
type BlobWriter struct {
	dir      string
	tmp      *os.File
	digester digest.Digester
	size     int64
	done     bool
}

// Open creates the shared temp file new writes into and starts a SHA-256
// digester over the raw bytes written to it.
func Open(ociDir string) (*BlobWriter, error) {
	if err := os.MkdirAll(filepath.Join(ociDir, "blobs", "sha256"), 0755); err != nil {
		return nil, errors.Wrap(err, "creating blobs/sha256 directory")
	}
	tmp, err := os.OpenFile(filepath.Join(ociDir, tmpBlobName), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "creating blob temp file")
	}
	return &BlobWriter{dir: ociDir, tmp: tmp, digester: digest.Canonical.Digester()}, nil
}

// Write appends p to the temp file and feeds it through the digester.
func (w *BlobWriter) Write(p []byte) (int, error) {
	n, err := w.tmp.Write(p)
	if n > 0 {
		w.size += int64(n)
		_, _ = w.digester.Hash().Write(p[:n])
	}
	if err != nil {
		return n, errors.Wrap(err, "writing blob temp file")
	}
	return n, nil
}

// Complete flushes and closes the temp file, then atomically renames it to
// blobs/sha256/<digest>. If a blob with the same digest is already present,
// the rename is treated as a no-op success (content addressing makes the
// two files interchangeable).
func (w *BlobWriter) Complete() (Blob, error) {
	if err := w.tmp.Sync(); err != nil {
		w.Abort()
		return Blob{}, errors.Wrap(err, "syncing blob temp file")
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return Blob{}, errors.Wrap(err, "closing blob temp file")
	}
	d := w.digester.Digest()
	dest := filepath.Join(w.dir, "blobs", "sha256", d.Encoded())
	if err := os.Rename(w.tmp.Name(), dest); err != nil {
		os.Remove(w.tmp.Name())
		return Blob{}, errors.Wrap(err, "publishing blob")
	}
	w.done = true
	return Blob{Digest: d, Size: w.size}, nil
}

// Abort discards the writer without publishing anything, removing the temp
// file. It is a no-op after Complete has already run.
func (w *BlobWriter) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}

// Size reports the number of bytes written so far, for a caller reporting
// export progress mid-stream.
func (w *BlobWriter) Size() int64 {
	return w.size
}

// Digest reports the SHA-256 of the bytes written so far. It is only
// meaningful for progress reporting before Complete; Complete recomputes
// the final digest from the fully written stream.
func (w *BlobWriter) Digest() digest.Digest {
	return w.digester.Digest()
}

// LayerWriter is a BlobWriter with a gzip encoder in front of it: writes are
// uncompressed bytes, digested separately from the compressed bytes that
// land in the underlying blob.
type LayerWriter struct {
	blob               *BlobWriter
	gz                 *pgzip.Writer
	uncompressedDigest digest.Digester
}

// OpenGzip opens a LayerWriter: an underlying BlobWriter plus a gzip
// encoder at the default compression level and a digester over the
// uncompressed stream.
func OpenGzip(ociDir string) (*LayerWriter, error) {
	blob, err := Open(ociDir)
	if err != nil {
		return nil, err
	}
	gz, err := pgzip.NewWriterLevel(blob, pgzip.DefaultCompression)
	if err != nil {
		blob.Abort()
		return nil, errors.Wrap(err, "initializing gzip encoder")
	}
	return &LayerWriter{blob: blob, gz: gz, uncompressedDigest: digest.Canonical.Digester()}, nil
}

// Write pushes p through the uncompressed digester and the gzip encoder.
// The returned count is always len(p) on success, matching the caller's
// expectation that it counts uncompressed bytes.
func (w *LayerWriter) Write(p []byte) (int, error) {
	_, _ = w.uncompressedDigest.Hash().Write(p)
	if _, err := w.gz.Write(p); err != nil {
		return 0, errors.Wrap(err, "writing layer content")
	}
	return len(p), nil
}

// Complete flushes the gzip encoder and completes the underlying blob,
// returning the published Layer.
func (w *LayerWriter) Complete() (Layer, error) {
	if err := w.gz.Close(); err != nil {
		w.blob.Abort()
		return Layer{}, errors.Wrap(err, "flushing gzip encoder")
	}
	blob, err := w.blob.Complete()
	if err != nil {
		return Layer{}, err
	}
	return Layer{Blob: blob, UncompressedDigest: w.uncompressedDigest.Digest()}, nil
}

// Abort discards the writer, propagating to the underlying BlobWriter.
func (w *LayerWriter) Abort() {
	w.blob.Abort()
}

// Size reports the number of compressed bytes written to the underlying
// blob so far, for a caller reporting export progress mid-stream.
func (w *LayerWriter) Size() int64 {
	return w.blob.Size()
}

// Digest reports the SHA-256 of the compressed bytes written so far. Like
// BlobWriter.Digest, only meaningful before Complete.
func (w *LayerWriter) Digest() digest.Digest {
	return w.blob.Digest()
}

var _ io.Writer = (*BlobWriter)(nil)
var _ io.Writer = (*LayerWriter)(nil)
