package selinuxlabel

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Relabel walks root, a directory a commit was just checked out into, and
// applies the host's SELinux file-context policy to every entry. On a
// non-root caller or a host with SELinux disabled, createMac returns a
// no-op stub and this is a cheap walk that changes nothing.
func Relabel(root string) error {
	mac, err := createMac()
	if err != nil {
		return errors.Wrap(err, "opening SELinux label database")
	}
	defer mac.Close()

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return mac.ChangeLabels(root, path, info.Mode())
	})
}
