package launch

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ocibox/runtime/libcontainer/errs"
	"github.com/ocibox/runtime/libcontainer/fd"
)

func newSocketPair(t *testing.T) (*fd.FD, *fd.FD) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	require.NoError(t, err)
	return fd.New(fds[0]), fd.New(fds[1])
}

func TestHandshakeStepInOrder(t *testing.T) {
	a, b := newSocketPair(t)
	defer a.Close()
	defer b.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- SendMessage(a, RequestConfigureUserNamespace)
	}()
	require.NoError(t, RecvMessage(b, RequestConfigureUserNamespace))
	require.NoError(t, <-errCh)
}

func TestRecvMessageRejectsUnexpectedByte(t *testing.T) {
	a, b := newSocketPair(t)
	defer a.Close()
	defer b.Close()

	require.NoError(t, SendMessage(a, CreateContainerHooksExecuted))

	err := RecvMessage(b, RequestConfigureUserNamespace)
	require.Error(t, err)

	var mismatch *ErrUnexpectedMessage
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, RequestConfigureUserNamespace, mismatch.Expected)
	require.Equal(t, CreateContainerHooksExecuted, mismatch.Actual)
}

func TestRecvMessageOnClosedSocketIsProtocolError(t *testing.T) {
	a, b := newSocketPair(t)
	defer b.Close()
	require.NoError(t, a.Close())

	err := RecvMessage(b, UserNamespaceConfigured)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrProtocol)
}

func TestMessageString(t *testing.T) {
	require.Equal(t, "REQUEST_CONFIGURE_USER_NAMESPACE", RequestConfigureUserNamespace.String())
	require.Contains(t, Message(0xEE).String(), "0xee")
}
