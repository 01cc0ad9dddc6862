// Package ostreeocidir is the library entry point: Build exports an OSTree
// commit as an OCI directory, Import and ImportTarball reconstruct an
// OSTree commit from a remote image or a tar stream.
package ostreeocidir

import (
	"archive/tar"
	"context"
	"io"

	digest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/ostreedev/ostree-ocidir/internal/ostreerepo"
	"github.com/ostreedev/ostree-ocidir/ociblob"
	"github.com/ostreedev/ostree-ocidir/ociclient"
	"github.com/ostreedev/ostree-ocidir/ocilayout"
	"github.com/ostreedev/ostree-ocidir/ostreeexport"
	"github.com/ostreedev/ostree-ocidir/ostreeimport"
)

// Target identifies where Build writes its output. The only kind today is
// an OCI directory; the tagged form leaves room for future kinds (an
// oci-archive file, a direct registry push) without changing Build's
// signature.
type Target struct {
	kind targetKind
	path string
}

type targetKind int

const targetOciDir targetKind = iota

// OciDir returns a Target writing an OCI directory layout at path. The path
// must not already exist.
func OciDir(path string) Target {
	return Target{kind: targetOciDir, path: path}
}

// Build exports ref from the OSTree repository at repoPath into target.
func Build(ctx context.Context, repoPath, ref string, target Target) error {
	switch target.kind {
	case targetOciDir:
		return buildOciDir(ctx, repoPath, ref, target.path)
	default:
		return errors.Errorf("unsupported build target kind %d", int(target.kind))
	}
}

func buildOciDir(ctx context.Context, repoPath, ref, ociDirPath string) error {
	repo, err := ostreerepo.Open(repoPath)
	if err != nil {
		return errors.Wrapf(err, "opening ostree repo %s", repoPath)
	}
	defer repo.Close()

	arch, err := ocilayout.HostArch()
	if err != nil {
		return err
	}

	layout, err := ocilayout.New(ociDirPath, arch)
	if err != nil {
		return err
	}

	layerWriter, err := ociblob.OpenGzip(ociDirPath)
	if err != nil {
		return errors.Wrap(err, "opening layer writer")
	}

	if err := ostreeexport.Export(ctx, repo, ref, layerWriter); err != nil {
		layerWriter.Abort()
		return errors.Wrapf(err, "exporting ref %s", ref)
	}

	layer, err := layerWriter.Complete()
	if err != nil {
		return errors.Wrap(err, "publishing layer blob")
	}

	layout.SetRootLayer(layer)
	if err := layout.Complete(); err != nil {
		return errors.Wrap(err, "writing OCI layout")
	}
	return nil
}

// ImportResult is what a successful Import or ImportTarball returns.
type ImportResult struct {
	OstreeCommit string
	ImageDigest  string
	LayerDigest  digest.Digest
}

// Import fetches imageRef from its registry and reconstructs the commit it
// describes into the OSTree repository at repoPath.
func Import(ctx context.Context, repoPath, imageRef string) (ImportResult, error) {
	return importImage(ctx, repoPath, imageRef, "")
}

// ImportWithRef is Import, plus it points writeRef at the imported commit
// within the same transaction.
func ImportWithRef(ctx context.Context, repoPath, imageRef, writeRef string) (ImportResult, error) {
	return importImage(ctx, repoPath, imageRef, writeRef)
}

func importImage(ctx context.Context, repoPath, imageRef, writeRef string) (ImportResult, error) {
	repo, err := ostreerepo.Open(repoPath)
	if err != nil {
		return ImportResult{}, errors.Wrapf(err, "opening ostree repo %s", repoPath)
	}
	defer repo.Close()

	result, err := ociclient.Import(ctx, repo, imageRef, writeRef)
	if err != nil {
		return ImportResult{}, errors.Wrapf(err, "importing %s", imageRef)
	}
	return ImportResult{OstreeCommit: result.OstreeCommit, ImageDigest: result.ImageDigest, LayerDigest: result.LayerDigest}, nil
}

// ImportTarball reconstructs a commit from an already-decompressed tar
// stream, the synchronous counterpart of Import for callers that have
// already fetched and decoded the layer themselves.
func ImportTarball(ctx context.Context, repoPath string, r io.Reader) (ImportResult, error) {
	return importTarball(ctx, repoPath, r, "")
}

// ImportTarballWithRef is ImportTarball, plus it points writeRef at the
// imported commit within the same transaction.
func ImportTarballWithRef(ctx context.Context, repoPath string, r io.Reader, writeRef string) (ImportResult, error) {
	return importTarball(ctx, repoPath, r, writeRef)
}

func importTarball(ctx context.Context, repoPath string, r io.Reader, writeRef string) (ImportResult, error) {
	repo, err := ostreerepo.Open(repoPath)
	if err != nil {
		return ImportResult{}, errors.Wrapf(err, "opening ostree repo %s", repoPath)
	}
	defer repo.Close()

	return importTarballInto(ctx, repo, r, writeRef)
}

func importTarballInto(ctx context.Context, sink ostreeimport.Sink, r io.Reader, writeRef string) (ImportResult, error) {
	var opts []ostreeimport.ImportOption
	if writeRef != "" {
		opts = append(opts, ostreeimport.WithWriteRef(writeRef))
	}
	commit, err := ostreeimport.Import(ctx, sink, tar.NewReader(r), opts...)
	if err != nil {
		return ImportResult{}, err
	}
	return ImportResult{OstreeCommit: commit}, nil
}
