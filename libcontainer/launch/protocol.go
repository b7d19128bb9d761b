package launch

import (
	"errors"
	"fmt"

	"github.com/ocibox/runtime/libcontainer/errs"
	"github.com/ocibox/runtime/libcontainer/fd"
)

// Message is one byte of the supervisor<->child synchronization protocol.
type Message byte

const (
	RequestConfigureUserNamespace Message = 0x00
	UserNamespaceConfigured       Message = 0x01
	PrestartHooksExecuted         Message = 0x02
	CreateRuntimeHooksExecuted    Message = 0x03
	CreateContainerHooksExecuted  Message = 0x04
)

func (m Message) String() string {
	switch m {
	case RequestConfigureUserNamespace:
		return "REQUEST_CONFIGURE_USER_NAMESPACE"
	case UserNamespaceConfigured:
		return "USER_NAMESPACE_CONFIGURED"
	case PrestartHooksExecuted:
		return "PRESTART_HOOKS_EXECUTED"
	case CreateRuntimeHooksExecuted:
		return "CREATE_RUNTIME_HOOKS_EXECUTED"
	case CreateContainerHooksExecuted:
		return "CREATE_CONTAINER_HOOKS_EXECUTED"
	default:
		return fmt.Sprintf("Message(%#02x)", byte(m))
	}
}

// ErrUnexpectedMessage reports a handshake step that received a byte other
// than the one it was waiting for.
type ErrUnexpectedMessage struct {
	Expected, Actual Message
}

func (e *ErrUnexpectedMessage) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
}

// SendMessage writes m to sock.
func SendMessage(sock *fd.FD, m Message) error {
	if err := sock.WriteByte(byte(m)); err != nil {
		return errs.Syscall("send "+m.String(), err)
	}
	return nil
}

// RecvMessage reads one byte from sock and requires it to equal expected.
// A premature orderly close surfaces fd.ErrClosed wrapped as a protocol
// error; any other mismatch surfaces ErrUnexpectedMessage.
func RecvMessage(sock *fd.FD, expected Message) error {
	b, err := sock.ReadByte()
	if err != nil {
		if errors.Is(err, fd.ErrClosed) {
			return errs.Protocol(fmt.Errorf("socket closed while waiting for %s: %w", expected, err))
		}
		return errs.Syscall("recv "+expected.String(), err)
	}
	got := Message(b)
	if got != expected {
		return errs.Protocol(&ErrUnexpectedMessage{Expected: expected, Actual: got})
	}
	return nil
}
