package ocilayout

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	specsv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostreedev/ostree-ocidir/ociblob"
)

func TestArchForMachine(t *testing.T) {
	arch, err := ArchForMachine("x86_64")
	require.NoError(t, err)
	assert.Equal(t, "amd64", arch)

	arch, err = ArchForMachine("aarch64")
	require.NoError(t, err)
	assert.Equal(t, "arm64", arch)

	_, err = ArchForMachine("riscv64")
	assert.Error(t, err)
}

func TestRegisterArch(t *testing.T) {
	_, err := ArchForMachine("riscv64")
	require.Error(t, err)

	RegisterArch("riscv64", "riscv64")
	arch, err := ArchForMachine("riscv64")
	require.NoError(t, err)
	assert.Equal(t, "riscv64", arch)
}

func buildLayer(t *testing.T, dir string) ociblob.Layer {
	t.Helper()
	lw, err := ociblob.OpenGzip(dir)
	require.NoError(t, err)
	_, err = lw.Write([]byte("fixture layer content"))
	require.NoError(t, err)
	layer, err := lw.Complete()
	require.NoError(t, err)
	return layer
}

func TestNewRejectsExistingDir(t *testing.T) {
	dir := t.TempDir()
	_, err := New(dir, "amd64")
	assert.Error(t, err)
}

func TestCompleteWritesLayoutManifestAndIndex(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "image")

	w, err := New(dir, "amd64")
	require.NoError(t, err)

	layoutRaw, err := os.ReadFile(filepath.Join(dir, specsv1.ImageLayoutFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{"imageLayoutVersion":"1.0.0"}`, string(layoutRaw))

	layer := buildLayer(t, dir)
	w.SetRootLayer(layer)
	require.NoError(t, w.Complete())

	indexRaw, err := os.ReadFile(filepath.Join(dir, "index.json"))
	require.NoError(t, err)
	var index specsv1.Index
	require.NoError(t, json.Unmarshal(indexRaw, &index))
	require.Len(t, index.Manifests, 1)
	manifestDesc := index.Manifests[0]
	assert.Equal(t, specsv1.MediaTypeImageManifest, manifestDesc.MediaType)
	require.NotNil(t, manifestDesc.Platform)
	assert.Equal(t, "amd64", manifestDesc.Platform.Architecture)

	manifestRaw, err := os.ReadFile(filepath.Join(dir, "blobs", "sha256", manifestDesc.Digest.Encoded()))
	require.NoError(t, err)
	var manifest specsv1.Manifest
	require.NoError(t, json.Unmarshal(manifestRaw, &manifest))
	require.Len(t, manifest.Layers, 1)
	assert.Equal(t, layer.Blob.Digest, manifest.Layers[0].Digest)
	assert.Equal(t, specsv1.MediaTypeImageLayerGzip, manifest.Layers[0].MediaType)

	configRaw, err := os.ReadFile(filepath.Join(dir, "blobs", "sha256", manifest.Config.Digest.Encoded()))
	require.NoError(t, err)
	var config specsv1.Image
	require.NoError(t, json.Unmarshal(configRaw, &config))
	assert.Equal(t, "amd64", config.Architecture)
	assert.Equal(t, "linux", config.OS)
	require.Len(t, config.RootFS.DiffIDs, 1)
	assert.Equal(t, layer.UncompressedDigest, config.RootFS.DiffIDs[0])
}

func TestSetRootLayerTwicePanics(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "image")
	w, err := New(dir, "amd64")
	require.NoError(t, err)
	layer := buildLayer(t, dir)
	w.SetRootLayer(layer)
	assert.Panics(t, func() { w.SetRootLayer(layer) })
}
