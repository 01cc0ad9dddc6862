package ostreeocidir

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostreedev/ostree-ocidir/internal/ostreerepo"
)

const testCommitChecksum = "d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4"

type fakeSink struct {
	committed bool
	aborted   bool
	refs      map[string]string
}

func (f *fakeSink) WriteMetadata(t ostreerepo.ObjectType, checksum string, data []byte) (string, error) {
	return checksum, nil
}

func (f *fakeSink) WriteContent(checksum string, r io.Reader, size int64, mode, uid, gid uint32, symlinkTarget string, xattrs []byte) (string, error) {
	if r != nil {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return "", err
		}
	}
	return checksum, nil
}

func (f *fakeSink) PrepareTransaction() error { return nil }
func (f *fakeSink) CommitTransaction() error  { f.committed = true; return nil }
func (f *fakeSink) AbortTransaction() error   { f.aborted = true; return nil }

func (f *fakeSink) TransactionSetRef(ref, checksum string) error {
	if f.refs == nil {
		f.refs = map[string]string{}
	}
	f.refs[ref] = checksum
	return nil
}

func commitOnlyTar(t *testing.T) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	body := []byte("commit-bytes")
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     "sysroot/ostree/repo/objects/" + testCommitChecksum[:2] + "/" + testCommitChecksum[2:] + ".commit",
		Size:     int64(len(body)),
	}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	return &buf
}

func TestBuildRejectsUnknownTargetKind(t *testing.T) {
	err := Build(context.Background(), "/no/such/repo", "some/ref", Target{kind: targetKind(42)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported build target")
}

func TestOciDirTargetCarriesPath(t *testing.T) {
	target := OciDir("/tmp/image")
	assert.Equal(t, targetOciDir, target.kind)
	assert.Equal(t, "/tmp/image", target.path)
}

func TestImportTarballIntoReturnsCommit(t *testing.T) {
	sink := &fakeSink{}
	result, err := importTarballInto(context.Background(), sink, commitOnlyTar(t), "")
	require.NoError(t, err)
	assert.Equal(t, testCommitChecksum, result.OstreeCommit)
	assert.True(t, sink.committed)
	assert.Empty(t, sink.refs, "no ref written unless one was asked for")
}

func TestImportTarballIntoThreadsWriteRef(t *testing.T) {
	sink := &fakeSink{}
	result, err := importTarballInto(context.Background(), sink, commitOnlyTar(t), "ociimage/latest")
	require.NoError(t, err)
	assert.Equal(t, testCommitChecksum, sink.refs["ociimage/latest"])
	assert.Equal(t, result.OstreeCommit, sink.refs["ociimage/latest"])
}

func TestImportTarballIntoAbortsOnEmptyStream(t *testing.T) {
	sink := &fakeSink{}
	var buf bytes.Buffer
	require.NoError(t, tar.NewWriter(&buf).Close())
	_, err := importTarballInto(context.Background(), sink, &buf, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no commit found")
	assert.True(t, sink.aborted)
	assert.False(t, sink.committed)
}
