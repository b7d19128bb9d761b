// Package errs defines the error kinds shared across the launch engine, per
// the error-handling design: configuration, syscall, protocol, hook and
// helper failures each get a distinct sentinel so callers can branch on
// errors.Is instead of string matching.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Wrap one of these with fmt.Errorf("...: %w", ErrX)
// so callers can still errors.Is against the kind after details are added.
var (
	// ErrConfiguration marks malformed or contradictory input, detected
	// before any side effect.
	ErrConfiguration = errors.New("configuration error")

	// ErrSyscall marks a failed kernel call.
	ErrSyscall = errors.New("syscall error")

	// ErrProtocol marks an unexpected sync-message byte or a premature
	// socket close mid-handshake.
	ErrProtocol = errors.New("protocol error")

	// ErrHook marks a hook that exited non-zero or was signaled.
	ErrHook = errors.New("hook error")

	// ErrHelper marks a missing or failing newuidmap/newgidmap/nsenter.
	ErrHelper = errors.New("helper error")
)

// Syscall wraps err as an ErrSyscall, carrying the syscall name for
// diagnosability.
func Syscall(name string, err error) error {
	return fmt.Errorf("%s: %w: %w", name, err, ErrSyscall)
}

// Configuration wraps msg as an ErrConfiguration.
func Configuration(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrConfiguration)
}

// Protocol wraps err as an ErrProtocol.
func Protocol(err error) error {
	return fmt.Errorf("%w: %w", err, ErrProtocol)
}

// Hook wraps err as an ErrHook, prefixed with the given hook label
// (launch.RunHooks passes the hook phase name).
func Hook(path string, err error) error {
	return fmt.Errorf("hook %s: %w: %w", path, err, ErrHook)
}

// Helper wraps err as an ErrHelper, naming the failing helper binary.
func Helper(name string, err error) error {
	return fmt.Errorf("%s: %w: %w", name, err, ErrHelper)
}
