// +build linux

package ocilayout

import (
	"bytes"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// HostArch returns the OCI architecture string for the machine this process
// is running on, asking the kernel for its machine name via uname(2) and
// mapping it through archTable.
func HostArch() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", errors.Wrap(err, "uname")
	}
	machine := uts.Machine[:]
	if i := bytes.IndexByte(machine, 0); i >= 0 {
		machine = machine[:i]
	}
	return ArchForMachine(string(machine))
}
