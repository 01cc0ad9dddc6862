// Package variant implements the real GVariant wire format for exactly the
// four serialised signatures OSTree's object model uses:
//
//	commit:  (a{sv}aya(say)sstayay)
//	dirmeta: (uuua(ayay))
//	dirtree: (a(say)a(sayay))
//	xattrs:  a(ayay)
//
// This is glib's actual on-disk/on-wire framing, not a simplified
// substitute: fixed-size members (y, u, t) are packed at their natural
// alignment with no length prefix; variable-size members (s, ay, arrays,
// tuples) are packed back to back and located via a trailing table of
// framing offsets, sized to the smallest of 1, 2, 4, or 8 bytes that can
// index the container's body. Strings are NUL-terminated; a variant's
// inner value and its type signature share one allocation separated by a
// single NUL, found by scanning backward from the end of the variant's
// byte range. internal/ostreerepo/bridge.go hands exactly these bytes to
// g_variant_new_from_bytes using the matching type signature, and
// internal/ostreerepo/repo.go's LoadVariant obtains them straight from
// ostree_repo_load_variant, so this package has to produce and consume
// the format real libostree expects, not merely round-trip with itself.
//
// One OSTree-specific wrinkle: the commit object's timestamp field is
// serialised big-endian (GUINT64_TO_BE in ostree-core.c) so that raw
// commit bytes sort chronologically; every other fixed-size field here
// uses glib's native little-endian convention.
//
// This environment has no glib/libostree available to run and capture a
// reference encoding, so the offset-table direction and width-selection
// rules below are implemented from the documented algorithm rather than
// verified against live output; variant_test.go pins the exact byte
// layout this produces so a future run against real glib has something
// concrete to diff against.
package variant

import (
	"sort"

	"github.com/pkg/errors"
)

// CommitFields holds the decoded fields of an OSTree commit object.
type CommitFields struct {
	Metadata  map[string][]byte // a{sv}; each value is treated as a string-typed variant
	Parent    []byte            // ay: empty, or a 32-byte checksum
	Related   []RelatedItem     // a(say)
	Subject   string
	Body      string
	Timestamp uint64 // t: seconds since epoch, big-endian on the wire
	RootTree  []byte // ay: 32-byte dirtree checksum
	RootMeta  []byte // ay: 32-byte dirmeta checksum
}

// RelatedItem is one entry of a commit's "related objects" list, (say).
type RelatedItem struct {
	Name     string
	Checksum []byte
}

// DirMetaFields holds the decoded fields of an OSTree dirmeta object.
type DirMetaFields struct {
	UID    uint32
	GID    uint32
	Mode   uint32
	Xattrs []XattrEntry
}

// DirTreeFields holds the decoded fields of an OSTree dirtree object.
type DirTreeFields struct {
	Files []DirTreeFile
	Dirs  []DirTreeDir
}

// DirTreeFile is one (name, content-checksum) entry, (say).
type DirTreeFile struct {
	Name     string
	Checksum []byte // 32 bytes
}

// DirTreeDir is one (name, tree-checksum, meta-checksum) entry, (sayay).
type DirTreeDir struct {
	Name         string
	TreeChecksum []byte // 32 bytes
	MetaChecksum []byte // 32 bytes
}

// XattrEntry is one (name, value) extended-attribute pair, from a(ayay).
type XattrEntry struct {
	Name  []byte
	Value []byte
}

// --- low-level framing ---------------------------------------------------

// chooseOffsetWidth picks the number of bytes (1, 2, 4, or 8) GVariant uses
// to frame a container whose body occupies bodySize bytes and which needs
// n trailing offsets, matching glib's own gvs_calculate_total_size rule: the
// smallest width under which body-plus-offsets still fits the width's range.
func chooseOffsetWidth(bodySize, n int) int {
	switch {
	case bodySize+n*1 <= 0xff:
		return 1
	case bodySize+n*2 <= 0xffff:
		return 2
	case bodySize+n*4 <= 0xffffffff:
		return 4
	default:
		return 8
	}
}

func align(buf []byte, n int) []byte {
	for len(buf)%n != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func alignPos(pos, n int) int {
	if r := pos % n; r != 0 {
		return pos + (n - r)
	}
	return pos
}

func appendOffset(buf []byte, width, v int) []byte {
	switch width {
	case 1:
		return append(buf, byte(v))
	case 2:
		return append(buf, byte(v), byte(v>>8))
	case 4:
		return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	default:
		u := uint64(v)
		return append(buf, byte(u), byte(u>>8), byte(u>>16), byte(u>>24), byte(u>>32), byte(u>>40), byte(u>>48), byte(u>>56))
	}
}

func readOffsetAt(data []byte, pos, width int) int {
	switch width {
	case 1:
		return int(data[pos])
	case 2:
		return int(data[pos]) | int(data[pos+1])<<8
	case 4:
		return int(data[pos]) | int(data[pos+1])<<8 | int(data[pos+2])<<16 | int(data[pos+3])<<24
	default:
		u := uint64(data[pos]) | uint64(data[pos+1])<<8 | uint64(data[pos+2])<<16 | uint64(data[pos+3])<<24 |
			uint64(data[pos+4])<<32 | uint64(data[pos+5])<<40 | uint64(data[pos+6])<<48 | uint64(data[pos+7])<<56
		return int(u)
	}
}

func readOffsetTable(data []byte, tableStart, n, width int) []int {
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = readOffsetAt(data, tableStart+i*width, width)
	}
	return out
}

// finishTupleOffsets appends offsets (collected in member-processing order,
// one per non-final variable member) to buf in reverse order, the
// convention GVariant uses for fixed-arity structures. start is where the
// tuple's body begins in buf.
func finishTupleOffsets(buf []byte, start int, offsets []int) []byte {
	if len(offsets) == 0 {
		return buf
	}
	w := chooseOffsetWidth(len(buf)-start, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		buf = appendOffset(buf, w, offsets[i])
	}
	return buf
}

// finishArrayOffsets appends one offset per element (collected in element
// order) to buf in forward order, so the last offset written — at the very
// end of the container — always equals the body length, letting a decoder
// recover the element count with no prior knowledge of it.
func finishArrayOffsets(buf []byte, start int, ends []int) []byte {
	if len(ends) == 0 {
		return buf
	}
	bodyLen := len(buf) - start
	w := chooseOffsetWidth(bodyLen, len(ends))
	for _, e := range ends {
		buf = appendOffset(buf, w, e)
	}
	return buf
}

// tupleFraming resolves the offset width and body end for a fixed-arity
// container occupying data[start:end) with exactly k framing offsets of its
// own (k is known from the type signature, not the data).
func tupleFraming(start, end, k int) (width, bodyEnd int, err error) {
	total := end - start
	if k == 0 {
		return 0, end, nil
	}
	for _, w := range []int{1, 2, 4, 8} {
		bodyLen := total - k*w
		if bodyLen < 0 {
			continue
		}
		if chooseOffsetWidth(bodyLen, k) == w {
			return w, start + bodyLen, nil
		}
	}
	return 0, 0, errors.New("variant: cannot resolve tuple framing")
}

// arrayFraming resolves the offset width, element count, and body end for a
// variable-element array occupying data[start:end), whose element count is
// not known ahead of time.
func arrayFraming(data []byte, start, end int) (width, n, bodyEnd int, err error) {
	total := end - start
	if total == 0 {
		return 0, 0, start, nil
	}
	for _, w := range []int{1, 2, 4, 8} {
		if total < w {
			continue
		}
		last := readOffsetAt(data, end-w, w)
		if last < 0 || last > total-w {
			continue
		}
		if (total-last)%w != 0 {
			continue
		}
		count := (total - last) / w
		if count <= 0 {
			continue
		}
		if chooseOffsetWidth(last, count) == w {
			return w, count, start + last, nil
		}
	}
	return 0, 0, 0, errors.New("variant: cannot resolve array framing")
}

func appendCString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}

func appendU32LE(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func readU32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func appendU64BE(buf []byte, v uint64) []byte {
	return append(buf, byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func readU64BE(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

// splitVariantValue separates a serialised "v" value's inner bytes from its
// trailing type signature, using the single NUL glib inserts between them
// (found by scanning backward, since the signature itself never contains a
// NUL byte).
func splitVariantValue(b []byte) (value, sig []byte) {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] == 0 {
			return b[:i], b[i+1:]
		}
	}
	return b, nil
}

// encodeVariantString wraps s as a serialised "v" holding a GVariant string,
// the only value type this package ever constructs for a{sv} entries.
func encodeVariantString(s []byte) []byte {
	v := append([]byte(nil), s...)
	v = append(v, 0) // string's own terminator
	v = append(v, 0) // value/signature separator
	v = append(v, 's')
	return v
}

// --- a{sv} dict entries (commit metadata) ---------------------------------

func encodeDictEntry(buf []byte, key string, valueVariant []byte) []byte {
	buf = align(buf, 8)
	start := len(buf)
	buf = appendCString(buf, key)
	keyEnd := len(buf)
	buf = align(buf, 8)
	buf = append(buf, valueVariant...)
	return finishTupleOffsets(buf, start, []int{keyEnd - start})
}

func decodeDictEntry(data []byte, start, end int) (string, []byte, error) {
	start = alignPos(start, 8)
	w, bodyEnd, err := tupleFraming(start, end, 1)
	if err != nil {
		return "", nil, errors.Wrap(err, "dict entry framing")
	}
	table := readOffsetTable(data, bodyEnd, 1, w)
	keyEnd := start + table[0]
	if keyEnd <= start || keyEnd > bodyEnd {
		return "", nil, errors.New("dict entry key offset out of range")
	}
	key := string(data[start : keyEnd-1])
	valueStart := alignPos(keyEnd, 8)
	if valueStart > bodyEnd {
		return "", nil, errors.New("dict entry value offset out of range")
	}
	inner, sig := splitVariantValue(data[valueStart:bodyEnd])
	value := append([]byte(nil), inner...)
	if string(sig) == "s" && len(value) > 0 && value[len(value)-1] == 0 {
		value = value[:len(value)-1]
	}
	return key, value, nil
}

func encodeDictArray(buf []byte, metadata map[string][]byte) []byte {
	buf = align(buf, 8)
	start := len(buf)
	var ends []int
	for _, k := range sortedKeys(metadata) {
		buf = encodeDictEntry(buf, k, encodeVariantString(metadata[k]))
		ends = append(ends, len(buf)-start)
	}
	return finishArrayOffsets(buf, start, ends)
}

func decodeDictArray(data []byte, start, end int) (map[string][]byte, error) {
	if end <= start {
		return nil, nil
	}
	w, n, bodyEnd, err := arrayFraming(data, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "metadata array framing")
	}
	offsets := readOffsetTable(data, bodyEnd, n, w)
	out := make(map[string][]byte, n)
	elemStart := start
	for i := 0; i < n; i++ {
		elemEnd := start + offsets[i]
		key, value, err := decodeDictEntry(data, elemStart, elemEnd)
		if err != nil {
			return nil, errors.Wrapf(err, "metadata entry %d", i)
		}
		out[key] = value
		elemStart = elemEnd
	}
	return out, nil
}

// --- (say) entries: commit's "related" list and dirtree's file list ------

func encodeSayEntry(buf []byte, name string, checksum []byte) []byte {
	start := len(buf)
	buf = appendCString(buf, name)
	nameEnd := len(buf)
	buf = append(buf, checksum...)
	return finishTupleOffsets(buf, start, []int{nameEnd - start})
}

func decodeSayEntry(data []byte, start, end int) (string, []byte, error) {
	w, bodyEnd, err := tupleFraming(start, end, 1)
	if err != nil {
		return "", nil, errors.Wrap(err, "entry framing")
	}
	table := readOffsetTable(data, bodyEnd, 1, w)
	nameEnd := start + table[0]
	if nameEnd <= start || nameEnd > bodyEnd {
		return "", nil, errors.New("entry name offset out of range")
	}
	name := string(data[start : nameEnd-1])
	checksum := append([]byte(nil), data[nameEnd:bodyEnd]...)
	return name, checksum, nil
}

func encodeSayArray(buf []byte, files []DirTreeFile) []byte {
	start := len(buf)
	var ends []int
	for _, f := range files {
		buf = encodeSayEntry(buf, f.Name, f.Checksum)
		ends = append(ends, len(buf)-start)
	}
	return finishArrayOffsets(buf, start, ends)
}

func decodeSayArray(data []byte, start, end int) ([]DirTreeFile, error) {
	if end <= start {
		return nil, nil
	}
	w, n, bodyEnd, err := arrayFraming(data, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "file array framing")
	}
	offsets := readOffsetTable(data, bodyEnd, n, w)
	out := make([]DirTreeFile, 0, n)
	elemStart := start
	for i := 0; i < n; i++ {
		elemEnd := start + offsets[i]
		name, csum, err := decodeSayEntry(data, elemStart, elemEnd)
		if err != nil {
			return nil, errors.Wrapf(err, "file entry %d", i)
		}
		out = append(out, DirTreeFile{Name: name, Checksum: csum})
		elemStart = elemEnd
	}
	return out, nil
}

func encodeRelatedArray(buf []byte, related []RelatedItem) []byte {
	start := len(buf)
	var ends []int
	for _, r := range related {
		buf = encodeSayEntry(buf, r.Name, r.Checksum)
		ends = append(ends, len(buf)-start)
	}
	return finishArrayOffsets(buf, start, ends)
}

func decodeRelatedArray(data []byte, start, end int) ([]RelatedItem, error) {
	if end <= start {
		return nil, nil
	}
	w, n, bodyEnd, err := arrayFraming(data, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "related array framing")
	}
	offsets := readOffsetTable(data, bodyEnd, n, w)
	out := make([]RelatedItem, 0, n)
	elemStart := start
	for i := 0; i < n; i++ {
		elemEnd := start + offsets[i]
		name, csum, err := decodeSayEntry(data, elemStart, elemEnd)
		if err != nil {
			return nil, errors.Wrapf(err, "related entry %d", i)
		}
		out = append(out, RelatedItem{Name: name, Checksum: csum})
		elemStart = elemEnd
	}
	return out, nil
}

// --- (sayay) entries: dirtree's subdirectory list -------------------------

func encodeSayayEntry(buf []byte, name string, tree, meta []byte) []byte {
	start := len(buf)
	buf = appendCString(buf, name)
	nameEnd := len(buf)
	buf = append(buf, tree...)
	treeEnd := len(buf)
	buf = append(buf, meta...)
	return finishTupleOffsets(buf, start, []int{nameEnd - start, treeEnd - start})
}

func decodeSayayEntry(data []byte, start, end int) (string, []byte, []byte, error) {
	w, bodyEnd, err := tupleFraming(start, end, 2)
	if err != nil {
		return "", nil, nil, errors.Wrap(err, "dir entry framing")
	}
	table := readOffsetTable(data, bodyEnd, 2, w)
	treeEnd := start + table[0]
	nameEnd := start + table[1]
	if nameEnd <= start || nameEnd > treeEnd || treeEnd > bodyEnd {
		return "", nil, nil, errors.New("dir entry offsets out of range")
	}
	name := string(data[start : nameEnd-1])
	tree := append([]byte(nil), data[nameEnd:treeEnd]...)
	meta := append([]byte(nil), data[treeEnd:bodyEnd]...)
	return name, tree, meta, nil
}

func encodeSayayArray(buf []byte, dirs []DirTreeDir) []byte {
	start := len(buf)
	var ends []int
	for _, d := range dirs {
		buf = encodeSayayEntry(buf, d.Name, d.TreeChecksum, d.MetaChecksum)
		ends = append(ends, len(buf)-start)
	}
	return finishArrayOffsets(buf, start, ends)
}

func decodeSayayArray(data []byte, start, end int) ([]DirTreeDir, error) {
	if end <= start {
		return nil, nil
	}
	w, n, bodyEnd, err := arrayFraming(data, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "subdir array framing")
	}
	offsets := readOffsetTable(data, bodyEnd, n, w)
	out := make([]DirTreeDir, 0, n)
	elemStart := start
	for i := 0; i < n; i++ {
		elemEnd := start + offsets[i]
		name, tree, meta, err := decodeSayayEntry(data, elemStart, elemEnd)
		if err != nil {
			return nil, errors.Wrapf(err, "subdir entry %d", i)
		}
		out = append(out, DirTreeDir{Name: name, TreeChecksum: tree, MetaChecksum: meta})
		elemStart = elemEnd
	}
	return out, nil
}

// --- a(ayay) entries: xattrs ----------------------------------------------

func encodeAyAyEntry(buf []byte, name, value []byte) []byte {
	start := len(buf)
	buf = append(buf, name...)
	nameEnd := len(buf)
	buf = append(buf, value...)
	return finishTupleOffsets(buf, start, []int{nameEnd - start})
}

func decodeAyAyEntry(data []byte, start, end int) ([]byte, []byte, error) {
	w, bodyEnd, err := tupleFraming(start, end, 1)
	if err != nil {
		return nil, nil, errors.Wrap(err, "xattr entry framing")
	}
	table := readOffsetTable(data, bodyEnd, 1, w)
	nameEnd := start + table[0]
	if nameEnd < start || nameEnd > bodyEnd {
		return nil, nil, errors.New("xattr entry name offset out of range")
	}
	name := append([]byte(nil), data[start:nameEnd]...)
	value := append([]byte(nil), data[nameEnd:bodyEnd]...)
	return name, value, nil
}

func encodeXattrsArray(buf []byte, entries []XattrEntry) []byte {
	start := len(buf)
	var ends []int
	for _, e := range entries {
		buf = encodeAyAyEntry(buf, e.Name, e.Value)
		ends = append(ends, len(buf)-start)
	}
	return finishArrayOffsets(buf, start, ends)
}

func decodeXattrsArray(data []byte, start, end int) ([]XattrEntry, error) {
	if end <= start {
		return nil, nil
	}
	w, n, bodyEnd, err := arrayFraming(data, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "xattr array framing")
	}
	offsets := readOffsetTable(data, bodyEnd, n, w)
	out := make([]XattrEntry, 0, n)
	elemStart := start
	for i := 0; i < n; i++ {
		elemEnd := start + offsets[i]
		name, value, err := decodeAyAyEntry(data, elemStart, elemEnd)
		if err != nil {
			return nil, errors.Wrapf(err, "xattr entry %d", i)
		}
		out = append(out, XattrEntry{Name: name, Value: value})
		elemStart = elemEnd
	}
	return out, nil
}

// EncodeXattrs serialises a list of extended attributes as a(ayay).
func EncodeXattrs(entries []XattrEntry) []byte {
	return encodeXattrsArray(nil, entries)
}

// DecodeXattrs parses an a(ayay) xattr list produced by EncodeXattrs or read
// from a real OSTree repository.
func DecodeXattrs(data []byte) ([]XattrEntry, error) {
	return decodeXattrsArray(data, 0, len(data))
}

// --- commit: (a{sv}aya(say)sstayay) ---------------------------------------

// EncodeCommit serialises a CommitFields.
func EncodeCommit(f CommitFields) []byte {
	var buf []byte

	buf = encodeDictArray(buf, f.Metadata)
	offMetadata := len(buf)

	buf = append(buf, f.Parent...)
	offParent := len(buf)

	buf = encodeRelatedArray(buf, f.Related)
	offRelated := len(buf)

	buf = appendCString(buf, f.Subject)
	offSubject := len(buf)

	buf = appendCString(buf, f.Body)
	offBody := len(buf)

	buf = align(buf, 8)
	buf = appendU64BE(buf, f.Timestamp)

	buf = append(buf, f.RootTree...)
	offRootTree := len(buf)

	buf = append(buf, f.RootMeta...) // last member: no offset recorded

	return finishTupleOffsets(buf, 0, []int{offMetadata, offParent, offRelated, offSubject, offBody, offRootTree})
}

// DecodeCommit parses a commit variant produced by EncodeCommit or loaded
// straight from a real OSTree repository via ostree_repo_load_variant.
func DecodeCommit(data []byte) (CommitFields, error) {
	var f CommitFields

	w, bodyEnd, err := tupleFraming(0, len(data), 6)
	if err != nil {
		return f, errors.Wrap(err, "commit framing")
	}
	table := readOffsetTable(data, bodyEnd, 6, w)
	offMetadata := table[5]
	offParent := table[4]
	offRelated := table[3]
	offSubject := table[2]
	offBody := table[1]
	offRootTree := table[0]

	pos := 0
	if f.Metadata, err = decodeDictArray(data, pos, offMetadata); err != nil {
		return f, errors.Wrap(err, "decoding commit metadata")
	}
	pos = offMetadata

	f.Parent = append([]byte(nil), data[pos:offParent]...)
	pos = offParent

	if f.Related, err = decodeRelatedArray(data, pos, offRelated); err != nil {
		return f, errors.Wrap(err, "decoding commit related list")
	}
	pos = offRelated

	if offSubject <= pos {
		return f, errors.New("commit subject offset out of range")
	}
	f.Subject = string(data[pos : offSubject-1])
	pos = offSubject

	if offBody <= pos {
		return f, errors.New("commit body offset out of range")
	}
	f.Body = string(data[pos : offBody-1])
	pos = offBody

	pos = alignPos(pos, 8)
	if pos+8 > bodyEnd {
		return f, errors.New("commit timestamp out of range")
	}
	f.Timestamp = readU64BE(data[pos : pos+8])
	pos += 8

	f.RootTree = append([]byte(nil), data[pos:offRootTree]...)
	pos = offRootTree

	f.RootMeta = append([]byte(nil), data[pos:bodyEnd]...)
	return f, nil
}

// --- dirmeta: (uuua(ayay)) -------------------------------------------------

// EncodeDirMeta serialises a DirMetaFields.
func EncodeDirMeta(f DirMetaFields) []byte {
	var buf []byte
	buf = appendU32LE(buf, f.UID)
	buf = appendU32LE(buf, f.GID)
	buf = appendU32LE(buf, f.Mode)
	buf = encodeXattrsArray(buf, f.Xattrs) // last member: no tuple-level offset
	return buf
}

// DecodeDirMeta parses a dirmeta variant produced by EncodeDirMeta or loaded
// from a real OSTree repository.
func DecodeDirMeta(data []byte) (DirMetaFields, error) {
	var f DirMetaFields
	if len(data) < 12 {
		return f, errors.New("dirmeta: too short for uid/gid/mode")
	}
	f.UID = readU32LE(data[0:4])
	f.GID = readU32LE(data[4:8])
	f.Mode = readU32LE(data[8:12])

	xattrs, err := decodeXattrsArray(data, 12, len(data))
	if err != nil {
		return f, errors.Wrap(err, "decoding dirmeta xattrs")
	}
	f.Xattrs = xattrs
	return f, nil
}

// --- dirtree: (a(say)a(sayay)) ---------------------------------------------

// EncodeDirTree serialises a DirTreeFields.
func EncodeDirTree(f DirTreeFields) []byte {
	var buf []byte
	buf = encodeSayArray(buf, f.Files)
	offFiles := len(buf)
	buf = encodeSayayArray(buf, f.Dirs) // last member: no tuple-level offset
	return finishTupleOffsets(buf, 0, []int{offFiles})
}

// DecodeDirTree parses a dirtree variant produced by EncodeDirTree or loaded
// from a real OSTree repository.
func DecodeDirTree(data []byte) (DirTreeFields, error) {
	var f DirTreeFields

	w, bodyEnd, err := tupleFraming(0, len(data), 1)
	if err != nil {
		return f, errors.Wrap(err, "dirtree framing")
	}
	table := readOffsetTable(data, bodyEnd, 1, w)
	offFiles := table[0]

	if f.Files, err = decodeSayArray(data, 0, offFiles); err != nil {
		return f, errors.Wrap(err, "decoding dirtree files")
	}
	if f.Dirs, err = decodeSayayArray(data, offFiles, bodyEnd); err != nil {
		return f, errors.Wrap(err, "decoding dirtree subdirs")
	}
	return f, nil
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
