// Package fsutil implements filesystem mutation relative to a held
// directory handle, so that concurrent manipulation of parent paths cannot
// redirect an operation outside the intended root. It is the Go analogue of
// linyaps_box::utils::{mkdir,touch,mknod,open_file}.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ocibox/runtime/libcontainer/fd"
)

// OpenRoot opens path as an O_PATH-style root handle for subsequent *At
// operations.
func OpenRoot(path string) (*fd.FD, error) {
	raw, err := unix.Open(path, unix.O_PATH|unix.O_DIRECTORY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return fd.New(raw), nil
}

// MkdirAllAt walks rel component by component beneath root, creating each
// missing segment with mode. An existing component is not an error. It
// returns a handle to the final component opened O_PATH (no read/write
// access requested).
func MkdirAllAt(root *fd.FD, rel string, mode uint32) (*fd.FD, error) {
	dupRaw, err := unix.Dup(root.Fd())
	if err != nil {
		return nil, fmt.Errorf("dup: %w", err)
	}
	current := fd.New(dupRaw)

	clean := filepath.Clean("/" + rel)
	parts := strings.Split(strings.Trim(clean, "/"), "/")
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if err := unix.Mkdirat(current.Fd(), part, mode); err != nil && err != unix.EEXIST {
			current.Close()
			return nil, fmt.Errorf("mkdirat %s: %w", part, err)
		}
		nextRaw, err := unix.Openat(current.Fd(), part, unix.O_PATH, 0)
		if err != nil {
			current.Close()
			return nil, openAtError(current, part, unix.O_PATH, err)
		}
		current.Close()
		current = fd.New(nextRaw)
	}
	return current, nil
}

// TouchAt creates filename beneath parent if absent, returning an open
// handle to it.
func TouchAt(parent *fd.FD, filename string) (*fd.FD, error) {
	raw, err := unix.Openat(parent.Fd(), filename, unix.O_CREAT|unix.O_RDONLY, 0o644)
	if err != nil {
		return nil, openAtError(parent, filename, unix.O_CREAT|unix.O_RDONLY, err)
	}
	return fd.New(raw), nil
}

// MknodAt creates a device node beneath root. The errno is wrapped with %w,
// so callers can detect EPERM with IsPermission and fall back to a bind
// mount.
func MknodAt(root *fd.FD, rel string, mode uint32, dev uint64) error {
	if err := unix.Mknodat(root.Fd(), rel, mode, int(dev)); err != nil {
		return fmt.Errorf("mknodat %s: %w", rel, err)
	}
	return nil
}

// OpenAt opens rel relative to root with flag. Errors name both the
// requested relative path and the target root currently resolves to (read
// via procfs) for diagnosability.
func OpenAt(root *fd.FD, rel string, flag int) (*fd.FD, error) {
	raw, err := unix.Openat(root.Fd(), rel, flag, 0)
	if err != nil {
		return nil, openAtError(root, rel, flag, err)
	}
	return fd.New(raw), nil
}

func openAtError(root *fd.FD, rel string, flag int, cause error) error {
	target, rerr := os.Readlink(root.ProcPath())
	if rerr != nil {
		target = root.ProcPath()
	}
	return fmt.Errorf("open %s at %s with flag %#o: %w", rel, target, flag, cause)
}

// IsNotExist reports whether err is an ENOENT from one of this package's
// operations.
func IsNotExist(err error) bool {
	return errors.Is(err, unix.ENOENT)
}

// IsPermission reports whether err is an EPERM from one of this package's
// operations.
func IsPermission(err error) bool {
	return errors.Is(err, unix.EPERM)
}
