// Package ocilayout materialises the fixed JSON surrounding an exported
// layer: oci-layout, the image config, the manifest, and index.json.
package ocilayout

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/containers/storage/pkg/ioutils"
	jsoncanonicalizer "github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	specsv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"

	"github.com/ostreedev/ostree-ocidir/ociblob"
)

var epoch = time.Unix(0, 0).UTC()

// archTable maps uname -m output to the OCI/Go architecture name. Extend as
// new host architectures need support; an unlisted name is a fatal error.
var archTable = map[string]string{
	"x86_64":  "amd64",
	"aarch64": "arm64",
}

// ArchForMachine resolves a host machine name (as returned by uname -m) to
// its OCI architecture string.
func ArchForMachine(machine string) (string, error) {
	arch, ok := archTable[machine]
	if !ok {
		return "", errors.Errorf("unknown host architecture %q", machine)
	}
	return arch, nil
}

// RegisterArch extends archTable with an additional machine-name mapping,
// for callers running on a host this package doesn't already know about.
func RegisterArch(machine, goArch string) {
	archTable[machine] = goArch
}

// Writer accumulates the single root layer of an export and, on Complete,
// writes the config and manifest blobs plus index.json. New has already
// written oci-layout.
type Writer struct {
	dir       string
	arch      string
	layer     *ociblob.Layer
	completed bool
}

// New creates a fresh OCI directory at dir (it must not already exist) and
// writes the oci-layout marker.
func New(dir, arch string) (*Writer, error) {
	if _, err := os.Stat(dir); err == nil {
		return nil, errors.Errorf("creating OCI dir: %s already exists", dir)
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "creating OCI dir")
	}
	if err := os.MkdirAll(filepath.Join(dir, "blobs", "sha256"), 0755); err != nil {
		return nil, errors.Wrap(err, "creating OCI dir")
	}

	layout := specsv1.ImageLayout{Version: specsv1.ImageLayoutVersion}
	if err := writeJSONFile(filepath.Join(dir, specsv1.ImageLayoutFile), layout); err != nil {
		return nil, errors.Wrap(err, "writing oci-layout")
	}

	return &Writer{dir: dir, arch: arch}, nil
}

// SetRootLayer records the export's single layer. Calling it twice is a
// programming error: this bridge never produces multi-layer images.
func (w *Writer) SetRootLayer(layer ociblob.Layer) {
	if w.layer != nil {
		panic("ocilayout: SetRootLayer called twice")
	}
	w.layer = &layer
}

// Complete builds and publishes the config and manifest blobs, then writes
// the index as index.json. The root layer must already be set.
func (w *Writer) Complete() error {
	if w.completed {
		return errors.New("ocilayout: Complete called twice")
	}
	if w.layer == nil {
		return errors.New("ocilayout: Complete called with no root layer set")
	}
	w.completed = true

	config := specsv1.Image{
		Architecture: w.arch,
		OS:           "linux",
		Config:       specsv1.ImageConfig{},
		RootFS: specsv1.RootFS{
			Type:    "layers",
			DiffIDs: []digest.Digest{w.layer.UncompressedDigest},
		},
		History: []specsv1.History{
			{Created: &epoch, Comment: "imported from an OSTree commit"},
		},
	}
	configDesc, err := w.writeCanonicalBlob(specsv1.MediaTypeImageConfig, config)
	if err != nil {
		return errors.Wrap(err, "writing image config")
	}

	manifest := specsv1.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: specsv1.MediaTypeImageManifest,
		Config:    configDesc,
		Layers: []specsv1.Descriptor{
			{
				MediaType: specsv1.MediaTypeImageLayerGzip,
				Digest:    w.layer.Blob.Digest,
				Size:      w.layer.Blob.Size,
			},
		},
	}
	manifestDesc, err := w.writeCanonicalBlob(specsv1.MediaTypeImageManifest, manifest)
	if err != nil {
		return errors.Wrap(err, "writing image manifest")
	}
	manifestDesc.Platform = &specsv1.Platform{Architecture: w.arch, OS: "linux"}

	index := specsv1.Index{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: specsv1.MediaTypeImageIndex,
		Manifests: []specsv1.Descriptor{manifestDesc},
	}
	if err := writeJSONFile(filepath.Join(w.dir, "index.json"), index); err != nil {
		return errors.Wrap(err, "writing index.json")
	}
	return nil
}

// writeCanonicalBlob serialises v in RFC 8785 canonical form (stable key
// order, matching the digest the registry side will recompute) and
// publishes it as a content-addressed blob.
func (w *Writer) writeCanonicalBlob(mediaType string, v interface{}) (specsv1.Descriptor, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return specsv1.Descriptor{}, err
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return specsv1.Descriptor{}, errors.Wrap(err, "canonicalizing JSON")
	}

	bw, err := ociblob.Open(w.dir)
	if err != nil {
		return specsv1.Descriptor{}, err
	}
	if _, err := bw.Write(canonical); err != nil {
		bw.Abort()
		return specsv1.Descriptor{}, err
	}
	blob, err := bw.Complete()
	if err != nil {
		return specsv1.Descriptor{}, err
	}
	return specsv1.Descriptor{MediaType: mediaType, Digest: blob.Digest, Size: blob.Size}, nil
}

// writeJSONFile serialises v and publishes it at path via a temp-then-rename
// write, so a reader never observes a truncated oci-layout or index.json.
func writeJSONFile(path string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ioutils.AtomicWriteFile(path, raw, 0644)
}
