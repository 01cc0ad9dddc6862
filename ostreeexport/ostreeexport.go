// Package ostreeexport walks an OSTree commit's transitive closure of
// dirtree/dirmeta/file objects and emits a single deterministic tar stream
// embedding both the raw object database and a materialised /etc view,
// ready to be gzipped into an OCI layer.
package ostreeexport

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/ostreedev/ostree-ocidir/internal/ostreerepo"
	"github.com/ostreedev/ostree-ocidir/internal/set"
	"github.com/ostreedev/ostree-ocidir/internal/variant"
	"github.com/ostreedev/ostree-ocidir/ostreepath"
)

const objectsDir = "sysroot/ostree/repo/objects/"
const xattrsDir = "sysroot/ostree/repo/xattrs/"

// Source is the slice of internal/ostreerepo.Repo's behavior the exporter
// needs to read a commit's transitive closure. *ostreerepo.Repo satisfies
// it; tests supply an in-memory fake instead of a live libostree repo.
type Source interface {
	ReadCommit(ref string) (string, error)
	LoadVariant(t ostreerepo.ObjectType, checksum string) ([]byte, error)
	LoadCommitMetaIfExists(commitChecksum string) ([]byte, error)
	LoadFile(checksum string) (io.ReadCloser, ostreerepo.FileInfo, []byte, error)
}

// exporter carries the dedup sets and tar writer shared by a single Export
// call's recursive walk. It holds no state beyond a single export's
// lifetime.
type exporter struct {
	tw   *tar.Writer
	repo Source

	wroteDirtree *set.Set[string]
	wroteDirmeta *set.Set[string]
	wroteContent *set.Set[string]
	wroteXattrs  *set.Set[string]
}

// Export resolves ref in repo and writes its transitive object closure,
// plus a materialised /etc view, as a tar stream to dest. dest is typically
// an ociblob.LayerWriter; Export itself neither opens nor completes it.
func Export(ctx context.Context, repo Source, ref string, dest io.Writer) error {
	tw := tar.NewWriter(dest)
	e := &exporter{
		tw:           tw,
		repo:         repo,
		wroteDirtree: set.New[string](),
		wroteDirmeta: set.New[string](),
		wroteContent: set.New[string](),
		wroteXattrs:  set.New[string](),
	}

	if err := e.writePlaceholders(); err != nil {
		return err
	}

	commitChecksum, err := repo.ReadCommit(ref)
	if err != nil {
		return errors.Wrapf(err, "resolving ref %s", ref)
	}

	commitBytes, err := repo.LoadVariant(ostreerepo.ObjectTypeCommit, commitChecksum)
	if err != nil {
		return errors.Wrapf(err, "loading commit %s", commitChecksum)
	}
	if err := e.writeObject(ostreerepo.ObjectTypeCommit, commitChecksum, commitBytes); err != nil {
		return err
	}

	if metaBytes, err := repo.LoadCommitMetaIfExists(commitChecksum); err != nil {
		return errors.Wrapf(err, "loading commitmeta for %s", commitChecksum)
	} else if metaBytes != nil {
		if err := e.writeObject(ostreerepo.ObjectTypeCommitMeta, commitChecksum, metaBytes); err != nil {
			return err
		}
	}

	commit, err := variant.DecodeCommit(commitBytes)
	if err != nil {
		return errors.Wrapf(err, "decoding commit %s", commitChecksum)
	}
	rootTree := hex.EncodeToString(commit.RootTree)
	rootMeta := hex.EncodeToString(commit.RootMeta)

	if err := e.writeDirMetaIfNew(rootMeta); err != nil {
		return err
	}
	if err := e.exportDir(ctx, rootTree, "."); err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "closing export tar stream")
	}
	return nil
}

// writePlaceholders emits the 256 shard directories plus the xattrs
// directory, so extraction into an empty repo never fails on a missing
// parent directory.
func (e *exporter) writePlaceholders() error {
	for i := 0; i < 256; i++ {
		name := fmt.Sprintf("%02x", i)
		if err := e.writeDir(objectsDir + name + "/"); err != nil {
			return err
		}
	}
	return e.writeDir(xattrsDir)
}

func (e *exporter) writeDir(name string) error {
	return e.tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeDir,
		Name:     name,
		Mode:     0755,
	})
}

// writeObject appends a metadata object (commit, commitmeta, dirtree, or
// dirmeta) as a regular tar entry at its canonical object path.
func (e *exporter) writeObject(t ostreerepo.ObjectType, checksum string, data []byte) error {
	path := ostreepath.ObjectPath(t, checksum)
	if err := e.tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     path,
		Mode:     0644,
		Size:     int64(len(data)),
	}); err != nil {
		return errors.Wrapf(err, "writing header for %s", path)
	}
	if _, err := e.tw.Write(data); err != nil {
		return errors.Wrapf(err, "writing content for %s", path)
	}
	return nil
}

func (e *exporter) writeDirMetaIfNew(checksum string) error {
	if e.wroteDirmeta.Contains(checksum) {
		return nil
	}
	data, err := e.repo.LoadVariant(ostreerepo.ObjectTypeDirMeta, checksum)
	if err != nil {
		return errors.Wrapf(err, "loading dirmeta %s", checksum)
	}
	if err := e.writeObject(ostreerepo.ObjectTypeDirMeta, checksum, data); err != nil {
		return err
	}
	e.wroteDirmeta.Add(checksum)
	return nil
}

// exportDir recurses into a dirtree object, writing its own object entry
// (once), every file it contains (once each, plus a payload hardlink per
// occurrence), and every subdirectory.
func (e *exporter) exportDir(ctx context.Context, treeChecksum, dirPath string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "export cancelled")
	}

	data, err := e.repo.LoadVariant(ostreerepo.ObjectTypeDirTree, treeChecksum)
	if err != nil {
		return errors.Wrapf(err, "loading dirtree %s", treeChecksum)
	}
	if !e.wroteDirtree.Contains(treeChecksum) {
		if err := e.writeObject(ostreerepo.ObjectTypeDirTree, treeChecksum, data); err != nil {
			return err
		}
		e.wroteDirtree.Add(treeChecksum)
	}

	tree, err := variant.DecodeDirTree(data)
	if err != nil {
		return errors.Wrapf(err, "decoding dirtree %s", treeChecksum)
	}

	for _, file := range tree.Files {
		if err := e.exportFile(dirPath, file); err != nil {
			return err
		}
	}

	for _, dir := range tree.Dirs {
		metaChecksum := hex.EncodeToString(dir.MetaChecksum)
		if err := e.writeDirMetaIfNew(metaChecksum); err != nil {
			return err
		}
		treeChecksum := hex.EncodeToString(dir.TreeChecksum)
		if err := e.exportDir(ctx, treeChecksum, dirPath+"/"+dir.Name); err != nil {
			return err
		}
	}
	return nil
}

func (e *exporter) exportFile(dirPath string, file variant.DirTreeFile) error {
	contentChecksum := hex.EncodeToString(file.Checksum)

	stream, info, xattrsData, err := e.repo.LoadFile(contentChecksum)
	if err != nil {
		return errors.Wrapf(err, "loading file object %s", contentChecksum)
	}
	if stream != nil {
		defer stream.Close()
	}

	if !e.wroteContent.Contains(contentChecksum) {
		objectPath := ostreepath.ObjectPath(ostreerepo.ObjectTypeFile, contentChecksum)

		if len(xattrsData) > 0 {
			xattrsChecksum := fmt.Sprintf("%x", sha256.Sum256(xattrsData))
			if !e.wroteXattrs.Contains(xattrsChecksum) {
				xattrsPath := ostreepath.XattrsPath(xattrsChecksum)
				if err := e.tw.WriteHeader(&tar.Header{
					Typeflag: tar.TypeReg,
					Name:     xattrsPath,
					Mode:     0644,
					Size:     int64(len(xattrsData)),
				}); err != nil {
					return errors.Wrapf(err, "writing xattrs blob header %s", xattrsPath)
				}
				if _, err := e.tw.Write(xattrsData); err != nil {
					return errors.Wrapf(err, "writing xattrs blob %s", xattrsPath)
				}
				e.wroteXattrs.Add(xattrsChecksum)
			}
			if err := e.tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeLink,
				Name:     objectPath + ".xattrs",
				Linkname: ostreepath.XattrsPath(xattrsChecksum),
			}); err != nil {
				return errors.Wrapf(err, "writing xattrs hardlink for %s", objectPath)
			}
		}

		if info.IsSymlink() {
			if err := e.tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeSymlink,
				Name:     objectPath,
				Linkname: info.SymlinkTarget,
				Mode:     int64(info.Mode),
				Uid:      int(info.UID),
				Gid:      int(info.GID),
			}); err != nil {
				return errors.Wrapf(err, "writing symlink object %s", objectPath)
			}
		} else {
			if err := e.tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeReg,
				Name:     objectPath,
				Mode:     int64(info.Mode),
				Uid:      int(info.UID),
				Gid:      int(info.GID),
				Size:     info.Size,
			}); err != nil {
				return errors.Wrapf(err, "writing file object header %s", objectPath)
			}
			if _, err := io.Copy(e.tw, stream); err != nil {
				return errors.Wrapf(err, "writing file object content %s", objectPath)
			}
		}
		e.wroteContent.Add(contentChecksum)
	}

	payloadPath := ostreepath.MapEtc(dirPath + "/" + file.Name)
	if err := e.tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeLink,
		Name:     payloadPath,
		Linkname: ostreepath.ObjectPath(ostreerepo.ObjectTypeFile, contentChecksum),
		Mode:     int64(info.Mode),
		Uid:      int(info.UID),
		Gid:      int(info.GID),
	}); err != nil {
		return errors.Wrapf(err, "writing payload hardlink %s", payloadPath)
	}
	return nil
}
