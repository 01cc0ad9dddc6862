package variant

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checksum(b byte) []byte {
	c := make([]byte, 32)
	for i := range c {
		c[i] = b
	}
	return c
}

func TestCommitRoundTrip(t *testing.T) {
	f := CommitFields{
		Metadata:  map[string][]byte{"version": []byte("42")},
		Parent:    checksum(0xAA),
		Related:   []RelatedItem{{Name: "ociimage/latest", Checksum: checksum(0xBB)}},
		Subject:   "subject line",
		Body:      "body text",
		Timestamp: 1700000000,
		RootTree:  checksum(0x11),
		RootMeta:  checksum(0x22),
	}
	encoded := EncodeCommit(f)
	decoded, err := DecodeCommit(encoded)
	require.NoError(t, err)
	assert.Equal(t, f.Subject, decoded.Subject)
	assert.Equal(t, f.Body, decoded.Body)
	assert.Equal(t, f.Timestamp, decoded.Timestamp)
	assert.True(t, bytes.Equal(f.RootTree, decoded.RootTree))
	assert.True(t, bytes.Equal(f.RootMeta, decoded.RootMeta))
	assert.True(t, bytes.Equal(f.Parent, decoded.Parent))
	require.Len(t, decoded.Related, 1)
	assert.Equal(t, "ociimage/latest", decoded.Related[0].Name)
	assert.Equal(t, []byte("42"), decoded.Metadata["version"])
}

func TestCommitRoundTripNoParent(t *testing.T) {
	f := CommitFields{
		Subject:   "root commit",
		Timestamp: 1,
		RootTree:  checksum(0x33),
		RootMeta:  checksum(0x44),
	}
	decoded, err := DecodeCommit(EncodeCommit(f))
	require.NoError(t, err)
	assert.Empty(t, decoded.Parent)
	assert.Empty(t, decoded.Related)
}

func TestDirMetaRoundTrip(t *testing.T) {
	f := DirMetaFields{
		UID:  1000,
		GID:  1000,
		Mode: 0o40755,
		Xattrs: []XattrEntry{
			{Name: []byte("security.selinux"), Value: []byte("system_u:object_r:default_t:s0\x00")},
		},
	}
	decoded, err := DecodeDirMeta(EncodeDirMeta(f))
	require.NoError(t, err)
	assert.Equal(t, f.UID, decoded.UID)
	assert.Equal(t, f.GID, decoded.GID)
	assert.Equal(t, f.Mode, decoded.Mode)
	require.Len(t, decoded.Xattrs, 1)
	assert.Equal(t, f.Xattrs[0].Name, decoded.Xattrs[0].Name)
	assert.Equal(t, f.Xattrs[0].Value, decoded.Xattrs[0].Value)
}

func TestDirMetaRoundTripNoXattrs(t *testing.T) {
	f := DirMetaFields{UID: 0, GID: 0, Mode: 0o40755}
	decoded, err := DecodeDirMeta(EncodeDirMeta(f))
	require.NoError(t, err)
	assert.Empty(t, decoded.Xattrs)
}

func TestDirTreeRoundTrip(t *testing.T) {
	f := DirTreeFields{
		Files: []DirTreeFile{
			{Name: "passwd", Checksum: checksum(0x01)},
			{Name: "true", Checksum: checksum(0x02)},
		},
		Dirs: []DirTreeDir{
			{Name: "etc", TreeChecksum: checksum(0x03), MetaChecksum: checksum(0x04)},
		},
	}
	decoded, err := DecodeDirTree(EncodeDirTree(f))
	require.NoError(t, err)
	require.Len(t, decoded.Files, 2)
	require.Len(t, decoded.Dirs, 1)
	assert.Equal(t, "passwd", decoded.Files[0].Name)
	assert.Equal(t, checksum(0x02), decoded.Files[1].Checksum)
	assert.Equal(t, "etc", decoded.Dirs[0].Name)
	assert.Equal(t, checksum(0x03), decoded.Dirs[0].TreeChecksum)
	assert.Equal(t, checksum(0x04), decoded.Dirs[0].MetaChecksum)
}

func TestXattrsRoundTripEmpty(t *testing.T) {
	decoded, err := DecodeXattrs(EncodeXattrs(nil))
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

// TestXattrsDecodeHandBuiltFixture decodes a byte-for-byte hand-derived
// a(ayay) value rather than something this package's own Encode produced,
// so it exercises the real GVariant framing rules (trailing offset table,
// no inline element count) independently of EncodeXattrs. There's no glib
// available in this environment to generate the fixture from a live
// g_variant_new, so it's derived by hand from the documented algorithm:
//
// one entry, name="abc" value="xyz":
//
//	'a' 'b' 'c' 'x' 'y' 'z'   - the two byte-arrays back to back, no framing
//	0x03                      - entry's own offset table: end of "abc" (3)
//	0x07                      - array's offset table: end of the one entry (7)
func TestXattrsDecodeHandBuiltFixture(t *testing.T) {
	data := []byte{'a', 'b', 'c', 'x', 'y', 'z', 0x03, 0x07}
	decoded, err := DecodeXattrs(data)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, []byte("abc"), decoded[0].Name)
	assert.Equal(t, []byte("xyz"), decoded[0].Value)
}

// TestDirMetaDecodeHandBuiltFixture pins the fixed-field layout of
// (uuua(ayay)): three little-endian uint32s packed with no padding between
// them (each is already 4-byte aligned), followed by an empty xattrs array
// (zero bytes, since it's the tuple's last member and has no elements).
func TestDirMetaDecodeHandBuiltFixture(t *testing.T) {
	data := []byte{
		0xe8, 0x03, 0x00, 0x00, // uid = 1000
		0xe8, 0x03, 0x00, 0x00, // gid = 1000
		0xed, 0x41, 0x00, 0x00, // mode = 0o40755
	}
	decoded, err := DecodeDirMeta(data)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, decoded.UID)
	assert.EqualValues(t, 1000, decoded.GID)
	assert.EqualValues(t, 0o40755, decoded.Mode)
	assert.Empty(t, decoded.Xattrs)
}
