// Package launch implements the namespace launcher (clone-flag computation,
// the supervisor<->child synchronization protocol, hook execution and id
// mapping) and the child- and supervisor-side handshake orchestration built
// on top of it.
//
// The canonical implementation this is adapted from clones a child onto a
// caller-managed stack with a raw clone(2) call. A Go program cannot safely
// call clone(2) directly from a running multi-threaded runtime, so the
// child is instead produced by re-executing /proc/self/exe with
// unix.SysProcAttr.Cloneflags set on an os/exec.Cmd, exactly as the
// libmocktainer-style corpus examples do. Every clone-flag, socket-pair and
// close-other-fds invariant still holds for the re-exec'd child; only the
// mechanism used to create it differs.
package launch

import (
	"os"
	"os/exec"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/ocibox/runtime/libcontainer/configs"
	"github.com/ocibox/runtime/libcontainer/errs"
	"github.com/ocibox/runtime/libcontainer/fd"
)

// GenerateCloneFlags translates namespaces into the combined clone flag set
// plus the child-termination signal, matching raw clone(2)'s convention of
// carrying the termination signal in the flag word's low byte. It performs
// no syscall; duplicates or unknown namespace types are rejected here.
func GenerateCloneFlags(namespaces configs.Namespaces) (uintptr, error) {
	flags, err := namespaces.CloneFlags()
	if err != nil {
		return 0, err
	}
	return flags | uintptr(unix.SIGCHLD), nil
}

// SocketPair creates the anonymous SOCK_SEQPACKET pair the sync protocol
// rides on. The first FD is retained by the supervisor, the second is
// handed to the child via ExtraFiles.
func SocketPair() (supervisor, child *fd.FD, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, nil, errs.Syscall("socketpair", err)
	}
	return fd.New(fds[0]), fd.New(fds[1]), nil
}

// CloseOtherFDs closes every open descriptor not named in except, using
// ranged close so the whole descriptor table need not be enumerated one at
// a time.
func CloseOtherFDs(except ...int) error {
	keep := append([]int(nil), except...)
	sort.Ints(keep)

	lo := uint(0)
	for _, f := range keep {
		if f < 0 {
			continue
		}
		if uint(f) > lo {
			if err := closeRange(lo, uint(f-1)); err != nil {
				return err
			}
		}
		if uint(f) >= lo {
			lo = uint(f) + 1
		}
	}
	return closeRange(lo, ^uint(0))
}

func closeRange(first, last uint) error {
	if err := unix.CloseRange(first, last, 0); err != nil && err != unix.EBADF && err != unix.EINVAL {
		return errs.Syscall("close_range", err)
	}
	return nil
}

// ChildArgs is the argv/env contract between the supervisor and the
// re-exec'd child entrypoint (cmd/ocibox's "init-child" hidden command).
type ChildArgs struct {
	Bundle string
}

// StartChild re-execs /proc/self/exe as the container init, placing
// childSock at file descriptor 3 (the first ExtraFiles slot) and applying
// cloneFlags to the new process's namespace set. The returned *exec.Cmd has
// already been started; the caller owns waiting on it.
func StartChild(cloneFlags uintptr, args ChildArgs, childSock *fd.FD) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, errs.Syscall("os.Executable", err)
	}

	cmd := exec.Command(exe, "init-child", args.Bundle)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{os.NewFile(uintptr(childSock.Fd()), "sync-socket")}
	cmd.SysProcAttr = &unix.SysProcAttr{
		Cloneflags: cloneFlags &^ uintptr(unix.SIGCHLD),
	}

	if err := cmd.Start(); err != nil {
		return nil, errs.Syscall("clone child", err)
	}
	return cmd, nil
}
