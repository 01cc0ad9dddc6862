// Package ociclient fetches the single filesystem layer of a remote OCI
// image and bridges it into the synchronous tar importer.
package ociclient

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	digest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ostreedev/ostree-ocidir/internal/putblobdigest"
	"github.com/ostreedev/ostree-ocidir/ostreeimport"
)

// layerMediaTypes are the compressed tar layer media types this bridge
// recognises; everything else (manifest lists for other architectures,
// non-tar layers) is filtered out before the single-layer check.
var layerMediaTypes = map[types.MediaType]bool{
	types.OCILayer:    true,
	types.DockerLayer: true,
}

// Result is what a successful Import returns: the checksum of the commit
// written into the destination repo, the registry digest of the image
// manifest it came from, and the digest of the single layer that was
// streamed (recomputed only if the registry's own descriptor didn't supply
// a canonical one).
type Result struct {
	OstreeCommit string
	ImageDigest  string
	LayerDigest  digest.Digest
}

// Import fetches imageRef anonymously, requires it resolve to exactly one
// tar+gzip layer, and streams that layer into sink via ostreeimport.Import.
// If writeRef is non-empty, it is pointed at the imported commit within the
// same transaction.
func Import(ctx context.Context, sink ostreeimport.Sink, imageRef, writeRef string) (Result, error) {
	ref, err := name.ParseReference(imageRef)
	if err != nil {
		return Result{}, errors.Wrapf(err, "parsing image reference %q", imageRef)
	}

	desc, err := remote.Get(ref, remote.WithContext(ctx), remote.WithAuth(authn.Anonymous))
	if err != nil {
		return Result{}, errors.Wrapf(err, "fetching manifest for %q", imageRef)
	}

	img, err := desc.Image()
	if err != nil {
		return Result{}, errors.Wrap(err, "resolving image from manifest")
	}

	layers, err := img.Layers()
	if err != nil {
		return Result{}, errors.Wrap(err, "listing image layers")
	}
	layer, err := singleLayer(layers)
	if err != nil {
		return Result{}, err
	}

	commit, layerDigest, err := streamLayer(ctx, sink, layer, writeRef)
	if err != nil {
		return Result{}, err
	}

	return Result{OstreeCommit: commit, ImageDigest: desc.Digest.String(), LayerDigest: layerDigest}, nil
}

func singleLayer(layers []v1.Layer) (v1.Layer, error) {
	var matched []v1.Layer
	for _, l := range layers {
		mt, err := l.MediaType()
		if err != nil {
			return nil, errors.Wrap(err, "reading layer media type")
		}
		if layerMediaTypes[mt] {
			matched = append(matched, l)
		}
	}
	if len(matched) != 1 {
		return nil, errors.Errorf("expected exactly one tar layer, found %d", len(matched))
	}
	return matched[0], nil
}

// streamLayer bridges the layer's compressed byte stream through an
// in-process pipe into a blocking gzip decode + tar import, so the caller's
// network read and the importer's OSTree writes run on separate
// goroutines joined by an errgroup. The layer's own digest is reused
// whenever the registry library already resolved a canonical one, and only
// recomputed on the fly otherwise.
func streamLayer(ctx context.Context, sink ostreeimport.Sink, layer v1.Layer, writeRef string) (string, digest.Digest, error) {
	compressed, err := layer.Compressed()
	if err != nil {
		return "", "", errors.Wrap(err, "opening layer stream")
	}
	defer compressed.Close()

	knownDigest := digest.Digest("")
	if h, err := layer.Digest(); err == nil && h.Algorithm == "sha256" {
		knownDigest = digest.Digest(h.String())
	}
	digester, counted := putblobdigest.DigestIfCanonicalUnknown(compressed, knownDigest)

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, copyErr := io.Copy(pw, counted)
		return pw.CloseWithError(copyErr)
	})

	var commit string
	g.Go(func() error {
		gz, err := gzip.NewReader(pr)
		if err != nil {
			return errors.Wrap(err, "opening gzip decoder")
		}
		defer gz.Close()

		var opts []ostreeimport.ImportOption
		if writeRef != "" {
			opts = append(opts, ostreeimport.WithWriteRef(writeRef))
		}
		c, err := ostreeimport.Import(gctx, sink, tar.NewReader(gz), opts...)
		if err != nil {
			return err
		}
		commit = c
		return nil
	})

	if err := g.Wait(); err != nil {
		return "", "", errors.Wrap(err, "importing layer")
	}
	return commit, digester.Digest(), nil
}
