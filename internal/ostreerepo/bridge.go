// +build !ostreerepo_stub

package ostreerepo

import (
	"io"
	"unsafe"
)

// #cgo pkg-config: glib-2.0 gobject-2.0 gio-2.0 ostree-1
// #include <glib.h>
// #include <gio/gio.h>
// #include <ostree.h>
// #include <stdlib.h>
//
// static GCancellable *no_cancellable() { return NULL; }
import "C"

// variantTypeString returns the GVariant type signature OSTree uses to frame
// the raw bytes produced by internal/variant for object type t.
func variantTypeString(t ObjectType) string {
	switch t {
	case ObjectTypeCommit:
		return "(a{sv}aya(say)sstayay)"
	case ObjectTypeCommitMeta:
		return "a{sv}"
	case ObjectTypeDirTree:
		return "(a(say)a(sayay))"
	case ObjectTypeDirMeta:
		return "(uuua(ayay))"
	default:
		return ""
	}
}

const xattrsTypeString = "a(ayay)"

// bytesToVariant frames raw encoded bytes as a GVariant of the signature
// appropriate for t, for use with ostree_repo_write_metadata.
func bytesToVariant(t ObjectType, data []byte) *C.GVariant {
	return bytesToVariantSig(variantTypeString(t), data)
}

func bytesToVariantSig(sig string, data []byte) *C.GVariant {
	csig := C.CString(sig)
	defer C.free(unsafe.Pointer(csig))
	vtype := C.g_variant_type_new(csig)
	defer C.g_variant_type_free(vtype)

	var cdata unsafe.Pointer
	if len(data) > 0 {
		cdata = C.CBytes(data)
	}
	gbytes := C.g_bytes_new_take(C.gpointer(cdata), C.gsize(len(data)))
	v := C.g_variant_new_from_bytes(vtype, gbytes, C.gboolean(0))
	return C.g_variant_ref_sink(v)
}

// inputStream adapts an OSTree GInputStream to io.ReadCloser for LoadFile
// callers that want to stream file content out of the repo.
type inputStream struct {
	stream *C.GInputStream
}

func (s *inputStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var gerr *C.GError
	n := C.g_input_stream_read(s.stream, C.gpointer(unsafe.Pointer(&p[0])), C.gsize(len(p)), C.no_cancellable(), &gerr)
	if n < 0 {
		return 0, goError(gerr)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return int(n), nil
}

func (s *inputStream) Close() error {
	var gerr *C.GError
	if C.g_input_stream_close(s.stream, C.no_cancellable(), &gerr) == 0 {
		return goError(gerr)
	}
	C.g_object_unref(C.gpointer(s.stream))
	return nil
}

// newGoReaderInputStream reads r fully into memory and wraps it as a
// GMemoryInputStream. OSTree's write_file path needs a seekable GInputStream
// with a known length; buffering keeps the cgo surface small since content
// objects in this bridge's working set (container layer files) are already
// bounded by the tar reader upstream.
func newGoReaderInputStream(r io.Reader) *C.GInputStream {
	buf, _ := io.ReadAll(r)
	var cdata unsafe.Pointer
	if len(buf) > 0 {
		cdata = C.CBytes(buf)
	}
	return C.g_memory_input_stream_new_from_data(C.gpointer(cdata), C.gssize(len(buf)), nil)
}
