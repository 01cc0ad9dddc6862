// Package ostreepath maps OSTree object identities to tar entry paths, and
// rewrites the one payload-path convention (/usr/etc vs /etc) the exporter
// needs to undo. Every function here is pure: no I/O, no package-level
// state.
package ostreepath

import (
	"strings"

	"github.com/ostreedev/ostree-ocidir/internal/ostreerepo"
)

const (
	objectsRoot = "sysroot/ostree/repo/objects/"
	xattrsRoot  = "sysroot/ostree/repo/xattrs/"
)

// ObjectPath returns the tar path an object of type t with the given
// 64-character hex checksum is stored at: the OSTree object-store sharding
// convention of a 2-hex-char directory plus the remaining 62 characters.
func ObjectPath(t ostreerepo.ObjectType, checksum string) string {
	return objectsRoot + checksum[:2] + "/" + checksum[2:] + "." + t.Suffix()
}

// XattrsPath returns the tar path a deduplicated xattr blob keyed by
// checksum (the SHA-256 of the blob's own bytes) is stored at.
func XattrsPath(checksum string) string {
	return xattrsRoot + checksum
}

// ShardDir returns the "xx" shard directory name for a 64-character hex
// checksum: its first two characters.
func ShardDir(checksum string) string {
	return checksum[:2]
}

const usrEtcPrefix = "./usr/etc"
const etcPrefix = "./etc"

// MapEtc rewrites a payload path rooted at "./usr/etc" to the equivalent
// path rooted at "./etc" (OSTree's /usr/etc merged-usr convention, inverted
// for the exported tar's user-facing view). Any other path is returned
// unchanged. Only applied to payload paths, never to object-store paths.
func MapEtc(path string) string {
	if path == usrEtcPrefix {
		return etcPrefix
	}
	if strings.HasPrefix(path, usrEtcPrefix+"/") {
		return etcPrefix + path[len(usrEtcPrefix):]
	}
	return path
}
