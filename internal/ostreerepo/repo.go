// +build !ostreerepo_stub

package ostreerepo

import (
	"fmt"
	"io"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
)

// #cgo pkg-config: glib-2.0 gobject-2.0 gio-2.0 ostree-1
// #include <glib.h>
// #include <gio/gio.h>
// #include <ostree.h>
// #include <stdlib.h>
//
// static GCancellable *no_cancellable() { return NULL; }
import "C"

// Repo wraps a single OstreeRepo handle. It exclusively owns at most one
// in-flight transaction at a time.
type Repo struct {
	path   string
	repo   *C.OstreeRepo
	inTxn  bool
}

// Open opens an existing OSTree repository at path.
func Open(path string) (*Repo, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	gfile := C.g_file_new_for_path(cpath)
	defer C.g_object_unref(C.gpointer(gfile))

	repo := C.ostree_repo_new(gfile)
	var gerr *C.GError
	if C.ostree_repo_open(repo, C.no_cancellable(), &gerr) == 0 {
		C.g_object_unref(C.gpointer(repo))
		return nil, errors.Wrapf(goError(gerr), "opening ostree repo at %s", path)
	}
	return &Repo{path: path, repo: repo}, nil
}

// Close releases the native repo handle. It is not an error to Close a repo
// with no open transaction; closing one that has an open transaction is a
// programming error (the caller must Commit or Abort first).
func (r *Repo) Close() error {
	if r.inTxn {
		return errors.New("closing ostree repo with an open transaction")
	}
	if r.repo != nil {
		C.g_object_unref(C.gpointer(r.repo))
		r.repo = nil
	}
	return nil
}

// ResolveRev resolves a ref to a checksum. If allowNoent, a missing ref
// yields ("", nil) instead of an error.
func (r *Repo) ResolveRev(ref string, allowNoent bool) (string, error) {
	cref := C.CString(ref)
	defer C.free(unsafe.Pointer(cref))

	var out *C.char
	var gerr *C.GError
	ok := C.ostree_repo_resolve_rev(r.repo, cref, C.gboolean(boolToInt(allowNoent)), &out, &gerr)
	if ok == 0 {
		return "", errors.Wrapf(goError(gerr), "resolving ref %s", ref)
	}
	if out == nil {
		return "", nil
	}
	defer C.g_free(C.gpointer(out))
	return C.GoString(out), nil
}

// ReadCommit resolves ref and returns the commit checksum it points to.
func (r *Repo) ReadCommit(ref string) (checksum string, err error) {
	checksum, err = r.ResolveRev(ref, false)
	if err != nil {
		return "", err
	}
	if checksum == "" {
		return "", errors.Errorf("ref %s does not exist", ref)
	}
	return checksum, nil
}

// LoadVariant reads a metadata object (commit, commitmeta, dirtree, or
// dirmeta) and returns its raw encoded bytes.
func (r *Repo) LoadVariant(t ObjectType, checksum string) ([]byte, error) {
	cchecksum := C.CString(checksum)
	defer C.free(unsafe.Pointer(cchecksum))

	var v *C.GVariant
	var gerr *C.GError
	ok := C.ostree_repo_load_variant(r.repo, objTypeToC(t), cchecksum, &v, &gerr)
	if ok == 0 {
		return nil, errors.Wrapf(goError(gerr), "loading %s object %s", t.Suffix(), checksum)
	}
	defer C.g_variant_unref(v)

	data := C.g_variant_get_data(v)
	size := C.g_variant_get_size(v)
	return C.GoBytes(unsafe.Pointer(data), C.int(size)), nil
}

// LoadCommitMetaIfExists is like LoadVariant(ObjectTypeCommitMeta, ...) but
// returns (nil, nil) instead of an error when no detached metadata sidecar
// exists for the commit, mirroring OSTree's own "if exists" convention.
func (r *Repo) LoadCommitMetaIfExists(commitChecksum string) ([]byte, error) {
	data, err := r.LoadVariant(ObjectTypeCommitMeta, commitChecksum)
	if err != nil {
		if isNoSuchObject(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// LoadFile reads a content object, returning a stream for regular files (nil
// for symlinks), its FileInfo, and its raw encoded xattrs variant.
func (r *Repo) LoadFile(checksum string) (stream io.ReadCloser, info FileInfo, xattrs []byte, err error) {
	cchecksum := C.CString(checksum)
	defer C.free(unsafe.Pointer(cchecksum))

	var cstream *C.GInputStream
	var cinfo *C.GFileInfo
	var cxattrs *C.GVariant
	var gerr *C.GError
	ok := C.ostree_repo_load_file(r.repo, cchecksum, &cstream, &cinfo, &cxattrs, C.no_cancellable(), &gerr)
	if ok == 0 {
		return nil, FileInfo{}, nil, errors.Wrapf(goError(gerr), "loading file object %s", checksum)
	}
	defer C.g_object_unref(C.gpointer(cinfo))

	info = FileInfo{
		Mode: fileInfoU32(cinfo, "unix::mode"),
		UID:  fileInfoU32(cinfo, "unix::uid"),
		GID:  fileInfoU32(cinfo, "unix::gid"),
	}

	if cxattrs != nil {
		data := C.g_variant_get_data(cxattrs)
		size := C.g_variant_get_size(cxattrs)
		xattrs = C.GoBytes(unsafe.Pointer(data), C.int(size))
		C.g_variant_unref(cxattrs)
	}

	if C.g_file_info_get_file_type(cinfo) == C.G_FILE_TYPE_SYMBOLIC_LINK {
		target := C.g_file_info_get_symlink_target(cinfo)
		info.SymlinkTarget = C.GoString(target)
		return nil, info, xattrs, nil
	}

	info.Size = int64(C.g_file_info_get_size(cinfo))
	return &inputStream{stream: cstream}, info, xattrs, nil
}

// WriteMetadata writes a metadata object (commit, commitmeta, dirtree, or
// dirmeta) from its raw encoded bytes and returns the checksum OSTree
// computed for it, which the caller is expected to already know and
// validate against.
func (r *Repo) WriteMetadata(t ObjectType, expectedChecksum string, data []byte) (string, error) {
	var cchecksum *C.char
	if expectedChecksum != "" {
		cchecksum = C.CString(expectedChecksum)
		defer C.free(unsafe.Pointer(cchecksum))
	}

	v := bytesToVariant(t, data)
	defer C.g_variant_unref(v)

	var outCsum *C.guchar
	var gerr *C.GError
	ok := C.ostree_repo_write_metadata(r.repo, objTypeToC(t), cchecksum, v, &outCsum, C.no_cancellable(), &gerr)
	if ok == 0 {
		return "", errors.Wrapf(goError(gerr), "writing %s object", t.Suffix())
	}
	defer C.g_free(C.gpointer(outCsum))
	return checksumToHex(outCsum), nil
}

// WriteContent writes a content object: a regular file streamed from reader
// with the given size, or a symlink when symlinkTarget is non-empty (in
// which case reader/size are ignored). The expected checksum is handed to
// libostree, which verifies the written object against it.
func (r *Repo) WriteContent(expectedChecksum string, reader io.Reader, size int64, mode, uid, gid uint32, symlinkTarget string, xattrs []byte) (string, error) {
	cinfo := C.g_file_info_new()
	defer C.g_object_unref(C.gpointer(cinfo))
	setFileInfoU32(cinfo, "unix::uid", uid)
	setFileInfoU32(cinfo, "unix::gid", gid)
	setFileInfoU32(cinfo, "unix::mode", mode)

	var cxattrs *C.GVariant
	if len(xattrs) > 0 {
		cxattrs = bytesToVariantSig(xattrsTypeString, xattrs)
		defer C.g_variant_unref(cxattrs)
	}

	var cstream *C.GInputStream
	if symlinkTarget != "" {
		C.g_file_info_set_file_type(cinfo, C.G_FILE_TYPE_SYMBOLIC_LINK)
		ctarget := C.CString(symlinkTarget)
		defer C.free(unsafe.Pointer(ctarget))
		C.g_file_info_set_symlink_target(cinfo, ctarget)
	} else {
		C.g_file_info_set_file_type(cinfo, C.G_FILE_TYPE_REGULAR)
		C.g_file_info_set_size(cinfo, C.goffset(size))
		cstream = newGoReaderInputStream(reader)
		defer C.g_object_unref(C.gpointer(cstream))
	}

	var objInput *C.GInputStream
	var objLength C.guint64
	var gerr *C.GError
	if C.ostree_raw_file_to_content_stream(cstream, cinfo, cxattrs, &objInput, &objLength, C.no_cancellable(), &gerr) == 0 {
		return "", errors.Wrap(goError(gerr), "framing content object")
	}
	defer C.g_object_unref(C.gpointer(objInput))

	var cchecksum *C.char
	if expectedChecksum != "" {
		cchecksum = C.CString(expectedChecksum)
		defer C.free(unsafe.Pointer(cchecksum))
	}

	var outCsum *C.guchar
	if C.ostree_repo_write_content(r.repo, cchecksum, objInput, objLength, &outCsum, C.no_cancellable(), &gerr) == 0 {
		return "", errors.Wrap(goError(gerr), "writing content object")
	}
	defer C.g_free(C.gpointer(outCsum))
	return checksumToHex(outCsum), nil
}

// PrepareTransaction begins a new write transaction on the repo.
func (r *Repo) PrepareTransaction() error {
	var resume C.gboolean
	var gerr *C.GError
	if C.ostree_repo_prepare_transaction(r.repo, &resume, C.no_cancellable(), &gerr) == 0 {
		return errors.Wrap(goError(gerr), "preparing ostree transaction")
	}
	r.inTxn = true
	return nil
}

// CommitTransaction commits the in-flight transaction.
func (r *Repo) CommitTransaction() error {
	var gerr *C.GError
	if C.ostree_repo_commit_transaction(r.repo, nil, C.no_cancellable(), &gerr) == 0 {
		return errors.Wrap(goError(gerr), "committing ostree transaction")
	}
	r.inTxn = false
	return nil
}

// AbortTransaction aborts the in-flight transaction, discarding any writes
// made since PrepareTransaction.
func (r *Repo) AbortTransaction() error {
	if !r.inTxn {
		return nil
	}
	var gerr *C.GError
	if C.ostree_repo_abort_transaction(r.repo, C.no_cancellable(), &gerr) == 0 {
		return errors.Wrap(goError(gerr), "aborting ostree transaction")
	}
	r.inTxn = false
	return nil
}

// TransactionSetRef points ref at checksum within the current transaction.
func (r *Repo) TransactionSetRef(ref, checksum string) error {
	cref := C.CString(ref)
	defer C.free(unsafe.Pointer(cref))
	cchecksum := C.CString(checksum)
	defer C.free(unsafe.Pointer(cchecksum))
	C.ostree_repo_transaction_set_ref(r.repo, nil, cref, cchecksum)
	return nil
}

func objTypeToC(t ObjectType) C.OstreeObjectType {
	switch t {
	case ObjectTypeCommit:
		return C.OSTREE_OBJECT_TYPE_COMMIT
	case ObjectTypeCommitMeta:
		return C.OSTREE_OBJECT_TYPE_COMMIT_META
	case ObjectTypeDirTree:
		return C.OSTREE_OBJECT_TYPE_DIR_TREE
	case ObjectTypeDirMeta:
		return C.OSTREE_OBJECT_TYPE_DIR_META
	case ObjectTypeFile:
		return C.OSTREE_OBJECT_TYPE_FILE
	default:
		panic(fmt.Sprintf("unhandled object type %d", int(t)))
	}
}

func fileInfoU32(info *C.GFileInfo, attr string) uint32 {
	cattr := C.CString(attr)
	defer C.free(unsafe.Pointer(cattr))
	return uint32(C.g_file_info_get_attribute_uint32(info, cattr))
}

func setFileInfoU32(info *C.GFileInfo, attr string, v uint32) {
	cattr := C.CString(attr)
	defer C.free(unsafe.Pointer(cattr))
	C.g_file_info_set_attribute_uint32(info, cattr, C.guint32(v))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checksumToHex(csum *C.guchar) string {
	b := C.GoBytes(unsafe.Pointer(csum), 32)
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 64)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}

func goError(gerr *C.GError) error {
	if gerr == nil {
		return errors.New("unknown ostree error")
	}
	defer C.g_error_free(gerr)
	return errors.New(C.GoString(gerr.message))
}

func isNoSuchObject(err error) bool {
	return err != nil && strings.Contains(err.Error(), "No such metadata object")
}
