package launch

import (
	"os/exec"
	"syscall"

	"github.com/opencontainers/runtime-spec/specs-go"

	"github.com/ocibox/runtime/libcontainer/configs"
	"github.com/ocibox/runtime/libcontainer/errs"
	"github.com/ocibox/runtime/libcontainer/fd"
	"github.com/ocibox/runtime/libcontainer/logging"
)

// RunSupervisor drives the supervisor's half of the handshake against a
// child already started by StartChild, and waits for it to exit. It
// returns the payload's exit status (by signal or by code) once the child
// process has been fully reaped. onRunning, if non-nil, is invoked right
// after wait_socket_close -- the instant the child is about to execve the
// payload -- so a caller can persist the RUNNING status while the
// container is actually running, not after it has already exited.
func RunSupervisor(cfg *configs.Config, cmd *exec.Cmd, sock *fd.FD, bundle string, onRunning func()) (int, error) {
	pid := cmd.Process.Pid

	// poststop runs on every return path once the child exists, including a
	// failed handshake; its errors are logged, never raised.
	defer func() {
		if hooks, ok := cfg.Hooks[configs.Poststop]; ok && len(hooks) > 0 {
			state := NewState(cfg.Hostname, bundle, pid, specs.StateStopped)
			if err := RunHooks(cfg.Hooks, configs.Poststop, state); err != nil {
				logging.L.Errorf("poststop hook failed: %v", err)
			}
		}
	}()

	if err := RecvMessage(sock, RequestConfigureUserNamespace); err != nil {
		return -1, err
	}

	if cfg.Namespaces.Contains(configs.NEWUSER) {
		if err := ConfigureGIDMapping(pid, cfg.GIDMappings); err != nil {
			return -1, err
		}
		if err := ConfigureUIDMapping(pid, cfg.UIDMappings); err != nil {
			return -1, err
		}
	}

	configureCgroup(cfg)

	if err := SendMessage(sock, UserNamespaceConfigured); err != nil {
		return -1, err
	}
	logging.L.Debug("supervisor: user namespace configured")

	if err := RecvMessage(sock, PrestartHooksExecuted); err != nil {
		return -1, err
	}

	if hooks, ok := cfg.Hooks[configs.CreateRuntime]; ok && len(hooks) > 0 {
		state := NewState(cfg.Hostname, bundle, pid, specs.StateCreating)
		if err := RunHooks(cfg.Hooks, configs.CreateRuntime, state); err != nil {
			return -1, err
		}
	}
	if err := SendMessage(sock, CreateRuntimeHooksExecuted); err != nil {
		return -1, err
	}

	if err := RecvMessage(sock, CreateContainerHooksExecuted); err != nil {
		return -1, err
	}
	logging.L.Debug("supervisor: create-container hooks acknowledged")

	waitSocketClose(sock)

	if onRunning != nil {
		onRunning()
	}

	// A poststart failure fails the launch; the payload is still reaped
	// first so its exit code is reported alongside the error.
	var poststartErr error
	if hooks, ok := cfg.Hooks[configs.Poststart]; ok && len(hooks) > 0 {
		state := NewState(cfg.Hostname, bundle, pid, specs.StateRunning)
		if err := RunHooks(cfg.Hooks, configs.Poststart, state); err != nil {
			logging.L.Errorf("poststart hook failed: %v", err)
			poststartErr = err
		}
	}

	exitCode, waitErr := waitPayload(cmd)
	if waitErr == nil {
		waitErr = poststartErr
	}
	return exitCode, waitErr
}

// configureCgroup is an acknowledged no-op extension point: cgroup resource
// enforcement is out of scope here, matching original_source's own stubbed
// configure_container_cgroup. The hook exists so a future cgroup driver has
// a single call site to attach to.
func configureCgroup(cfg *configs.Config) {
	if cfg.Cgroups == nil {
		return
	}
	logging.L.Debug("supervisor: cgroup configuration is not enforced by this runtime")
}

// waitSocketClose blocks until the child performs an orderly close of its
// end of the socket, which it does immediately before execve-ing the
// payload. Any other outcome (a stray byte) is logged but not fatal --
// by this point every hook-boundary message has already been consumed.
func waitSocketClose(sock *fd.FD) {
	b, err := sock.ReadByte()
	if err != nil {
		return
	}
	logging.L.Debugf("supervisor: unexpected byte %#02x after handshake completion", b)
}

// waitPayload waits on cmd, tolerating EINTR/EAGAIN, and extracts either
// the payload's exit code or its signal-reported exit code.
func waitPayload(cmd *exec.Cmd) (int, error) {
	err := cmd.Wait()
	if cmd.ProcessState == nil {
		return -1, errs.Syscall("wait4", err)
	}

	if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return cmd.ProcessState.ExitCode(), nil
}
