// Package putblobdigest helps compute the digest of a blob while it is
// being streamed to its destination, for callers (the OCI-client adapter)
// that may or may not already know it.
package putblobdigest

import (
	"io"

	digest "github.com/opencontainers/go-digest"
)

// Digester computes (or already knows) the digest of a blob stream.
type Digester interface {
	// Digest returns the digest of the blob. Must only be called after the
	// stream returned alongside this Digester has been fully read.
	Digest() digest.Digest
}

type noopDigester struct {
	knownDigest digest.Digest
}

func (d noopDigester) Digest() digest.Digest {
	return d.knownDigest
}

type digestingReader struct {
	digester digest.Digester
}

func (d *digestingReader) Digest() digest.Digest {
	return d.digester.Digest()
}

// DigestIfUnknown returns a Digester and a stream to read instead of stream.
// If knownDigest is already set, the original stream is returned unmodified
// and no hashing happens; otherwise the canonical digest is computed as the
// returned stream is read.
func DigestIfUnknown(stream io.Reader, knownDigest digest.Digest) (Digester, io.Reader) {
	if knownDigest != "" {
		return noopDigester{knownDigest}, stream
	}
	digester := digest.Canonical.Digester()
	return &digestingReader{digester}, io.TeeReader(stream, digester.Hash())
}

// DigestIfCanonicalUnknown is like DigestIfUnknown, but also recomputes the
// digest if knownDigest uses a non-canonical algorithm.
func DigestIfCanonicalUnknown(stream io.Reader, knownDigest digest.Digest) (Digester, io.Reader) {
	if knownDigest != "" && knownDigest.Algorithm() == digest.Canonical {
		return noopDigester{knownDigest}, stream
	}
	digester := digest.Canonical.Digester()
	return &digestingReader{digester}, io.TeeReader(stream, digester.Hash())
}
