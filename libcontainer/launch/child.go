package launch

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/opencontainers/runtime-spec/specs-go"

	"github.com/ocibox/runtime/libcontainer/configs"
	"github.com/ocibox/runtime/libcontainer/errs"
	"github.com/ocibox/runtime/libcontainer/fd"
	"github.com/ocibox/runtime/libcontainer/fsutil"
	"github.com/ocibox/runtime/libcontainer/logging"
	"github.com/ocibox/runtime/libcontainer/mount"
)

// RunChild drives the full child-side handshake against sock: request the
// user namespace mapping, wait for it, run the mount plan, then step
// through the remaining hook-boundary messages before execve-ing the
// payload. It returns only on error; success ends in execve and the
// process image is replaced.
func RunChild(cfg *configs.Config, sock *fd.FD) error {
	if err := SendMessage(sock, RequestConfigureUserNamespace); err != nil {
		return err
	}
	if err := RecvMessage(sock, UserNamespaceConfigured); err != nil {
		return err
	}
	logging.L.Debug("child: user namespace configured")

	root, err := fsutil.OpenRoot(cfg.Rootfs)
	if err != nil {
		return errs.Syscall("open rootfs", err)
	}
	defer root.Close()

	planner := mount.NewPlanner(root)
	for i := range cfg.Mounts {
		if err := planner.Mount(cfg.Mounts[i]); err != nil {
			return fmt.Errorf("mount entry %d (%s): %w", i, cfg.Mounts[i].Destination, err)
		}
	}
	if err := planner.MaskPaths(cfg.MaskPaths); err != nil {
		return err
	}
	if err := planner.ReadonlyPaths(cfg.ReadonlyPaths); err != nil {
		return err
	}
	if err := planner.Finalize(); err != nil {
		return err
	}
	logging.L.Debug("child: mount plan applied")

	if cfg.Readonlyfs {
		if err := mount.RemountReadonly(cfg.Rootfs); err != nil {
			return err
		}
	}

	if err := mount.FinalizeRoot(cfg.Rootfs, cfg.NoPivotRoot); err != nil {
		return err
	}
	logging.L.Debug("child: rootfs pivoted")

	if cfg.Namespaces.Contains(configs.NEWUTS) {
		if cfg.Hostname != "" {
			if err := unix.Sethostname([]byte(cfg.Hostname)); err != nil {
				return errs.Syscall("sethostname", err)
			}
		}
		if cfg.Domainname != "" {
			if err := unix.Setdomainname([]byte(cfg.Domainname)); err != nil {
				return errs.Syscall("setdomainname", err)
			}
		}
	}

	// prestart is deprecated by OCI in favor of createRuntime/createContainer,
	// but still runs here, in the container's own namespaces, matching
	// container_ns::prestart_hooks rather than the supervisor.
	if hooks, ok := cfg.Hooks[configs.Prestart]; ok && len(hooks) > 0 {
		state := NewState(cfg.Hostname, cfg.Rootfs, os.Getpid(), specs.StateCreating)
		if err := RunHooks(cfg.Hooks, configs.Prestart, state); err != nil {
			return err
		}
	}
	if err := SendMessage(sock, PrestartHooksExecuted); err != nil {
		return err
	}
	if err := RecvMessage(sock, CreateRuntimeHooksExecuted); err != nil {
		return err
	}

	if hooks, ok := cfg.Hooks[configs.CreateContainer]; ok && len(hooks) > 0 {
		state := NewState(cfg.Hostname, cfg.Rootfs, os.Getpid(), specs.StateCreating)
		if err := RunHooks(cfg.Hooks, configs.CreateContainer, state); err != nil {
			return err
		}
	}
	if err := SendMessage(sock, CreateContainerHooksExecuted); err != nil {
		return err
	}

	if hooks, ok := cfg.Hooks[configs.StartContainer]; ok && len(hooks) > 0 {
		state := NewState(cfg.Hostname, cfg.Rootfs, os.Getpid(), specs.StateCreated)
		if err := RunHooks(cfg.Hooks, configs.StartContainer, state); err != nil {
			return err
		}
	}

	if err := sock.Close(); err != nil {
		return errs.Syscall("close sync socket", err)
	}

	if err := CloseOtherFDs(0, 1, 2); err != nil {
		return err
	}

	return execPayload(cfg)
}

func execPayload(cfg *configs.Config) error {
	p := cfg.Process
	if p == nil || len(p.Args) == 0 {
		return errs.Configuration("process.args must be non-empty")
	}

	if err := applyRlimits(cfg.Rlimits); err != nil {
		return err
	}
	if cfg.OomScoreAdj != nil {
		if err := writeOomScoreAdj(*cfg.OomScoreAdj); err != nil {
			return err
		}
	}
	if err := applyCredentials(p); err != nil {
		return err
	}

	if err := unix.Chdir(p.Cwd); err != nil {
		return errs.Syscall("chdir", err)
	}
	path, err := lookPath(p.Args[0], p.Env["PATH"])
	if err != nil {
		return errs.Syscall("resolve payload path", err)
	}
	// unix.Exec only returns on error: on success the process image is
	// replaced and this function never returns.
	return errs.Syscall("execve", unix.Exec(path, p.Args, p.EnvList()))
}

// applyCredentials drops to the payload's configured uid/gid, in the order
// the kernel requires: supplementary groups before the primary gid, the
// primary gid before the uid (dropping uid first would forbid the later
// setgid/setgroups calls).
func applyCredentials(p *configs.Process) error {
	if len(p.AdditionalGids) > 0 {
		if err := unix.Setgroups(toIntSlice(p.AdditionalGids)); err != nil {
			return errs.Syscall("setgroups", err)
		}
	}
	if p.GID != 0 {
		if err := unix.Setgid(int(p.GID)); err != nil {
			return errs.Syscall("setgid", err)
		}
	}
	if p.UID != 0 {
		if err := unix.Setuid(int(p.UID)); err != nil {
			return errs.Syscall("setuid", err)
		}
	}
	return nil
}

func toIntSlice(gids []uint32) []int {
	out := make([]int, len(gids))
	for i, g := range gids {
		out[i] = int(g)
	}
	return out
}

// applyRlimits sets each configured resource limit before the final
// execve, mirroring the teacher's configs.Rlimit type.
func applyRlimits(limits []configs.Rlimit) error {
	for _, rl := range limits {
		lim := unix.Rlimit{Cur: rl.Soft, Max: rl.Hard}
		if err := unix.Setrlimit(rl.Type, &lim); err != nil {
			return errs.Syscall(fmt.Sprintf("setrlimit(%d)", rl.Type), err)
		}
	}
	return nil
}

func writeOomScoreAdj(score int) error {
	if err := os.WriteFile("/proc/self/oom_score_adj", []byte(strconv.Itoa(score)), 0o644); err != nil {
		return errs.Syscall("write oom_score_adj", err)
	}
	return nil
}

// lookPath resolves name against the container's own PATH (not the
// supervisor's os.Getenv("PATH")), since by this point the process has
// already pivoted into the container's filesystem.
func lookPath(name, path string) (string, error) {
	if strings.Contains(name, "/") {
		return name, nil
	}
	for _, dir := range strings.Split(path, ":") {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		if err := unix.Access(candidate, unix.X_OK); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: not found in PATH", name)
}
