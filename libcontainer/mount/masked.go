package mount

import (
	"golang.org/x/sys/unix"

	"github.com/ocibox/runtime/libcontainer/configs"
	"github.com/ocibox/runtime/libcontainer/errs"
	"github.com/ocibox/runtime/libcontainer/fsutil"
)

// MaskPaths bind-mounts /dev/null over each path (or an empty tmpfs
// directory for directories), hiding host state the bundle's config.json
// lists under linux.maskedPaths. Missing targets are skipped, matching
// runc's behavior: masking is best-effort against a rootfs that may not
// contain every well-known path.
func (p *Planner) MaskPaths(paths []string) error {
	for _, path := range paths {
		if err := p.maskPath(path); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) maskPath(path string) error {
	rel := relative(path)
	target, err := fsutil.OpenAt(p.root, rel, unix.O_PATH)
	if err != nil {
		if fsutil.IsNotExist(err) {
			return nil
		}
		return errs.Syscall("open mask target", err)
	}

	var st unix.Stat_t
	statErr := unix.Fstat(target.Fd(), &st)
	target.Close()
	if statErr != nil {
		return errs.Syscall("fstat", statErr)
	}

	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		return p.Mount(&configs.Mount{
			Source:      "tmpfs",
			Type:        "tmpfs",
			Destination: path,
			Flags:       configs.MsRdonly,
			Data:        "size=0k",
		})
	}

	return p.Mount(&configs.Mount{
		Source:      "/dev/null",
		Type:        "bind",
		Destination: path,
		Flags:       configs.MsBind,
	})
}

// ReadonlyPaths bind-self-mounts each path onto itself, then remounts it
// MS_BIND|MS_REMOUNT|MS_RDONLY. Unlike user-supplied bind mounts, the
// source here must resolve inside the container's own root -- path is an
// absolute container path, and going through Mount/doBindMount would treat
// it as a host path (filepath.IsAbs(path) is true), bind-mounting the
// host's file over the container's target instead of self-binding the
// container's own path. The target handle opened via the held root fd is
// reused directly as both mount endpoints instead. Missing targets are
// skipped.
func (p *Planner) ReadonlyPaths(paths []string) error {
	for _, path := range paths {
		rel := relative(path)
		target, err := fsutil.OpenAt(p.root, rel, unix.O_PATH)
		if err != nil {
			if fsutil.IsNotExist(err) {
				continue
			}
			return errs.Syscall("open readonly target", err)
		}

		bindFlags := uintptr(configs.MsBind | configs.MsRec)
		if err := p.mount(target.ProcPath(), target.ProcPath(), "", bindFlags, ""); err != nil {
			target.Close()
			return errs.Syscall("mount (bind self)", err)
		}

		remountFlags := uintptr(configs.MsBind | configs.MsRec | configs.MsRemount | configs.MsRdonly)
		if err := p.mount("", target.ProcPath(), "", remountFlags, ""); err != nil {
			target.Close()
			return errs.Syscall("mount (remount readonly)", err)
		}
		target.Close()
	}
	return nil
}
