package mount

import (
	"golang.org/x/sys/unix"

	"github.com/ocibox/runtime/libcontainer/errs"
)

// FinalizeRoot makes rootfs the process's new "/" once the mount plan has
// been applied to it, so the payload's execve resolves paths against the
// container's filesystem rather than the host's. PivotRoot is the default;
// noPivotRoot selects the MS_MOVE+chroot fallback runc uses for filesystems
// that reject pivot_root (notably initramfs-backed or ro-bind-over-self
// roots), per configs.Config.NoPivotRoot.
func FinalizeRoot(rootfs string, noPivotRoot bool) error {
	if noPivotRoot {
		return chrootRoot(rootfs)
	}
	return pivotRoot(rootfs)
}

func pivotRoot(rootfs string) error {
	// Bind-mount the rootfs onto itself so pivot_root's requirement that
	// new_root be a mount point is satisfied even when the caller passed a
	// plain directory.
	if err := unix.Mount(rootfs, rootfs, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return errs.Syscall("bind rootfs onto itself", err)
	}

	oldroot, err := unix.Open("/", unix.O_DIRECTORY|unix.O_RDONLY, 0)
	if err != nil {
		return errs.Syscall("open /", err)
	}
	defer unix.Close(oldroot)

	newroot, err := unix.Open(rootfs, unix.O_DIRECTORY|unix.O_RDONLY, 0)
	if err != nil {
		return errs.Syscall("open rootfs", err)
	}
	defer unix.Close(newroot)

	if err := unix.Fchdir(newroot); err != nil {
		return errs.Syscall("fchdir rootfs", err)
	}
	if err := unix.PivotRoot(".", "."); err != nil {
		return errs.Syscall("pivot_root", err)
	}
	if err := unix.Fchdir(oldroot); err != nil {
		return errs.Syscall("fchdir old root", err)
	}
	if err := unix.Mount("", ".", "", unix.MS_SLAVE|unix.MS_REC, ""); err != nil {
		return errs.Syscall("make old root slave", err)
	}
	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		return errs.Syscall("unmount old root", err)
	}
	if err := unix.Chdir("/"); err != nil {
		return errs.Syscall("chdir /", err)
	}
	return nil
}

// RemountReadonly remounts rootfs MS_RDONLY in place, honoring
// configs.Config.Readonlyfs. It runs before FinalizeRoot so the remount
// targets the still-absolute rootfs path rather than "/" after pivot.
func RemountReadonly(rootfs string) error {
	if err := unix.Mount("", rootfs, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_REC, ""); err != nil {
		return errs.Syscall("remount rootfs readonly", err)
	}
	return nil
}

func chrootRoot(rootfs string) error {
	if err := unix.Chdir(rootfs); err != nil {
		return errs.Syscall("chdir rootfs", err)
	}
	if err := unix.Mount(rootfs, "/", "", unix.MS_MOVE, ""); err != nil {
		return errs.Syscall("move rootfs to /", err)
	}
	if err := unix.Chroot("."); err != nil {
		return errs.Syscall("chroot", err)
	}
	return unix.Chdir("/")
}
