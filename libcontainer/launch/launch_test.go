package launch

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ocibox/runtime/libcontainer/configs"
)

func TestGenerateCloneFlagsIsOrderIndependent(t *testing.T) {
	a := configs.Namespaces{
		{Type: configs.NEWNS}, {Type: configs.NEWPID}, {Type: configs.NEWNET},
	}
	b := configs.Namespaces{
		{Type: configs.NEWNET}, {Type: configs.NEWNS}, {Type: configs.NEWPID},
	}

	flagsA, err := GenerateCloneFlags(a)
	require.NoError(t, err)
	flagsB, err := GenerateCloneFlags(b)
	require.NoError(t, err)
	require.Equal(t, flagsA, flagsB)

	want := uintptr(unix.CLONE_NEWNS) | uintptr(unix.CLONE_NEWPID) | uintptr(unix.CLONE_NEWNET) | uintptr(unix.SIGCHLD)
	require.Equal(t, want, flagsA)
}

func TestGenerateCloneFlagsRejectsDuplicates(t *testing.T) {
	ns := configs.Namespaces{{Type: configs.NEWPID}, {Type: configs.NEWPID}}
	_, err := GenerateCloneFlags(ns)
	require.Error(t, err)
}

func TestCloseOtherFDsKeepsExceptions(t *testing.T) {
	if testing.Short() {
		t.Skip("manipulates the process-wide descriptor table")
	}

	r1, w1, err := pipeFDs(t)
	require.NoError(t, err)
	r2, w2, err := pipeFDs(t)
	require.NoError(t, err)

	// Keep stdio alive too, or the test binary's own output pipes vanish.
	require.NoError(t, CloseOtherFDs(0, 1, 2, r1, w2))

	var st unix.Stat_t
	require.NoError(t, unix.Fstat(r1, &st))
	require.NoError(t, unix.Fstat(w2, &st))
	require.ErrorIs(t, unix.Fstat(w1, &st), unix.EBADF)
	require.ErrorIs(t, unix.Fstat(r2, &st), unix.EBADF)
}

func pipeFDs(t *testing.T) (r, w int, err error) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}
