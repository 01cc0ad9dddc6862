// Package ostreeimport reconstructs an OSTree object graph from the tar
// layout ostreeexport produces, validating every object and writing it into
// a destination repository inside a single transaction.
package ostreeimport

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/ostreedev/ostree-ocidir/internal/ostreerepo"
)

const (
	prefix = "sysroot/ostree/repo/"

	maxMetadataSize = 10 << 20
	maxXattrSize    = 1 << 20
)

var checksumRE = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Sink is the slice of internal/ostreerepo.Repo's behavior the importer
// needs to write a reconstructed object graph. *ostreerepo.Repo satisfies
// it; tests supply an in-memory fake instead of a live libostree repo.
type Sink interface {
	WriteMetadata(t ostreerepo.ObjectType, expectedChecksum string, data []byte) (string, error)
	WriteContent(expectedChecksum string, reader io.Reader, size int64, mode, uid, gid uint32, symlinkTarget string, xattrs []byte) (string, error)
	PrepareTransaction() error
	CommitTransaction() error
	AbortTransaction() error
	TransactionSetRef(ref, checksum string) error
}

// ImportOptions carries optional behavior beyond the bare tar-to-object
// translation.
type ImportOptions struct {
	// WriteRef, if non-empty, points this ref at the imported commit within
	// the same transaction, so a subsequent `ostree log <ref>` finds it.
	// Opt-in: plain imports are addressed by the returned checksum alone.
	WriteRef string
}

// ImportOption mutates an ImportOptions; see WithWriteRef.
type ImportOption func(*ImportOptions)

// WithWriteRef sets the ref the imported commit should be pointed at.
func WithWriteRef(ref string) ImportOption {
	return func(o *ImportOptions) { o.WriteRef = ref }
}

// importer carries the per-import state machine: which commit (if any) has
// been seen, the xattr blobs read so far, and the single pending xattr
// reference that must be immediately followed by its content object.
type importer struct {
	sink Sink

	commitChecksum string // empty until the Initial->Importing transition
	xattrBlobs     map[string][]byte

	pendingXattrFor  string
	pendingXattrBlob []byte
}

// Import reads tr to EOF, reconstructing the OSTree object graph it
// describes into repo within a single transaction, and returns the
// imported commit's checksum. The transaction commits on success and
// aborts on any error, cancellation, or the tar stream ending with no
// commit ever seen.
func Import(ctx context.Context, sink Sink, tr *tar.Reader, opts ...ImportOption) (string, error) {
	var options ImportOptions
	for _, opt := range opts {
		opt(&options)
	}

	if err := sink.PrepareTransaction(); err != nil {
		return "", errors.Wrap(err, "preparing import transaction")
	}

	imp := &importer{sink: sink, xattrBlobs: map[string][]byte{}}
	commit, err := imp.run(ctx, tr)
	if err != nil {
		sink.AbortTransaction()
		return "", err
	}

	if options.WriteRef != "" {
		if err := sink.TransactionSetRef(options.WriteRef, commit); err != nil {
			sink.AbortTransaction()
			return "", errors.Wrapf(err, "setting ref %s", options.WriteRef)
		}
	}

	if err := sink.CommitTransaction(); err != nil {
		return "", errors.Wrap(err, "committing import transaction")
	}
	return commit, nil
}

func (imp *importer) run(ctx context.Context, tr *tar.Reader) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", errors.Wrap(err, "import cancelled")
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "reading tar stream")
		}

		if err := imp.handleEntry(hdr, tr); err != nil {
			return "", errors.Wrapf(err, "processing entry %s", hdr.Name)
		}
	}

	if err := imp.checkNoPendingXattr(); err != nil {
		return "", err
	}
	if imp.commitChecksum == "" {
		return "", errors.New("no commit found")
	}
	return imp.commitChecksum, nil
}

// checkNoPendingXattr errors if an xattr reference is still waiting for its
// content object. Every entry kind other than that exact content object
// must call this first: the reference-then-content pairing is adjacent, not
// merely eventual.
func (imp *importer) checkNoPendingXattr() error {
	if imp.pendingXattrFor != "" {
		return errors.Errorf("xattr reference for %s without matching content object", imp.pendingXattrFor)
	}
	return nil
}

func (imp *importer) handleEntry(hdr *tar.Header, tr *tar.Reader) error {
	if hdr.Typeflag == tar.TypeDir {
		return imp.checkNoPendingXattr()
	}
	rel, ok := strings.CutPrefix(strings.TrimPrefix(hdr.Name, "./"), prefix)
	if !ok {
		// Payload path entry: the object store alone reconstructs the tree.
		return imp.checkNoPendingXattr()
	}

	switch {
	case strings.HasPrefix(rel, "objects/") && strings.HasSuffix(rel, ".xattrs"):
		return imp.handleXattrRef(rel, hdr)
	case strings.HasPrefix(rel, "objects/"):
		return imp.handleObject(rel, hdr, tr)
	case strings.HasPrefix(rel, "xattrs/"):
		return imp.handleXattrBlob(rel, hdr, tr)
	default:
		return imp.checkNoPendingXattr()
	}
}

// handleXattrBlob stores a deduplicated xattr blob, keyed by the checksum
// embedded in its own tar path.
func (imp *importer) handleXattrBlob(rel string, hdr *tar.Header, tr *tar.Reader) error {
	if err := imp.checkNoPendingXattr(); err != nil {
		return err
	}
	checksum := strings.TrimPrefix(rel, "xattrs/")
	if !checksumRE.MatchString(checksum) {
		return errors.Errorf("invalid xattr blob checksum %q", checksum)
	}
	if hdr.Typeflag != tar.TypeReg {
		return errors.Errorf("xattr blob %s is not a regular file", checksum)
	}
	if hdr.Size > maxXattrSize {
		return errors.Errorf("xattr blob %s exceeds %d bytes", checksum, maxXattrSize)
	}
	data, err := io.ReadAll(tr)
	if err != nil {
		return errors.Wrapf(err, "reading xattr blob %s", checksum)
	}
	if got := fmt.Sprintf("%x", sha256.Sum256(data)); got != checksum {
		return errors.Errorf("xattr blob %s does not match its own digest (%s)", checksum, got)
	}
	imp.xattrBlobs[checksum] = data
	return nil
}

// handleXattrRef records that the content object named in rel must arrive
// next and should carry the xattr blob hdr.Linkname points at.
func (imp *importer) handleXattrRef(rel string, hdr *tar.Header) error {
	if err := imp.checkNoPendingXattr(); err != nil {
		return err
	}
	if hdr.Typeflag != tar.TypeLink {
		return errors.Errorf("xattr reference %s is not a hardlink", rel)
	}
	stem := strings.TrimSuffix(strings.TrimSuffix(rel, ".xattrs"), ".file")
	contentChecksum, err := objectChecksum(stem)
	if err != nil {
		return err
	}
	blobChecksum, ok := strings.CutPrefix(hdr.Linkname, prefix+"xattrs/")
	if !ok {
		return errors.Errorf("xattr reference %s points outside xattrs/: %s", rel, hdr.Linkname)
	}
	blob, ok := imp.xattrBlobs[blobChecksum]
	if !ok {
		return errors.Errorf("xattr reference %s points at unknown blob %s", rel, blobChecksum)
	}
	imp.pendingXattrFor = contentChecksum
	imp.pendingXattrBlob = blob
	return nil
}

// handleObject dispatches a sysroot/ostree/repo/objects/<xx>/<rest>.<ext>
// entry to the metadata or content write path based on its extension.
func (imp *importer) handleObject(rel string, hdr *tar.Header, tr *tar.Reader) error {
	dot := strings.LastIndexByte(rel, '.')
	if dot < 0 {
		return errors.Errorf("object entry %s has no type suffix", rel)
	}
	checksum, err := objectChecksum(rel[:dot])
	if err != nil {
		return err
	}
	suffix := rel[dot+1:]

	if imp.pendingXattrFor != "" && (suffix != "file" || checksum != imp.pendingXattrFor) {
		return errors.Errorf("xattr reference for %s without matching content object", imp.pendingXattrFor)
	}

	if suffix == "file" {
		return imp.handleContent(checksum, hdr, tr)
	}

	objType, ok := ostreerepo.ObjectTypeFromSuffix(suffix)
	if !ok {
		return errors.Errorf("object entry %s has unrecognised type %q", rel, suffix)
	}
	return imp.handleMetadata(objType, checksum, hdr, tr)
}

func (imp *importer) handleMetadata(objType ostreerepo.ObjectType, checksum string, hdr *tar.Header, tr *tar.Reader) error {
	if objType != ostreerepo.ObjectTypeCommit && imp.commitChecksum == "" {
		return errors.Errorf("found %s object %s before commit", objType.Suffix(), checksum)
	}
	if objType == ostreerepo.ObjectTypeCommit && imp.commitChecksum != "" {
		return errors.New("found multiple commit objects")
	}
	if hdr.Typeflag != tar.TypeReg {
		return errors.Errorf("%s object %s is not a regular file", objType.Suffix(), checksum)
	}
	if hdr.Size > maxMetadataSize {
		return errors.Errorf("%s object %s exceeds %d bytes", objType.Suffix(), checksum, maxMetadataSize)
	}

	data, err := io.ReadAll(tr)
	if err != nil {
		return errors.Wrapf(err, "reading %s object %s", objType.Suffix(), checksum)
	}
	if _, err := imp.sink.WriteMetadata(objType, checksum, data); err != nil {
		return errors.Wrapf(err, "writing %s object %s", objType.Suffix(), checksum)
	}

	if objType == ostreerepo.ObjectTypeCommit {
		imp.commitChecksum = checksum
	}
	return nil
}

func (imp *importer) handleContent(checksum string, hdr *tar.Header, tr *tar.Reader) error {
	if imp.commitChecksum == "" {
		return errors.Errorf("found content object %s before commit", checksum)
	}

	var xattrs []byte
	if imp.pendingXattrFor == checksum {
		xattrs = imp.pendingXattrBlob
		imp.pendingXattrFor = ""
		imp.pendingXattrBlob = nil
	}

	switch hdr.Typeflag {
	case tar.TypeSymlink:
		_, err := imp.sink.WriteContent(checksum, nil, 0, uint32(hdr.Mode), uint32(hdr.Uid), uint32(hdr.Gid), hdr.Linkname, xattrs)
		return err
	case tar.TypeReg:
		_, err := imp.sink.WriteContent(checksum, tr, hdr.Size, uint32(hdr.Mode), uint32(hdr.Uid), uint32(hdr.Gid), "", xattrs)
		return err
	default:
		return errors.Errorf("content object %s has unsupported tar entry type %v", checksum, hdr.Typeflag)
	}
}

// objectChecksum reconstructs and validates a 64-character hex checksum
// from an "<xx>/<rest>" object-path stem.
func objectChecksum(stem string) (string, error) {
	shard, rest, ok := strings.Cut(strings.TrimPrefix(stem, "objects/"), "/")
	if !ok {
		return "", errors.Errorf("malformed object path %q", stem)
	}
	checksum := shard + rest
	if !checksumRE.MatchString(checksum) {
		return "", errors.Errorf("invalid object checksum %q", checksum)
	}
	return checksum, nil
}
