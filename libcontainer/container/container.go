// Package container implements the top-level container supervisor: the
// state machine that binds the mount planner, the namespace launcher and
// the status directory together into create/run/exec/kill operations. It
// is the Go analogue of original_source/linyaps_box/container.cpp's
// container class and runtime_ns driver functions.
package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ocibox/runtime/libcontainer/configs"
	"github.com/ocibox/runtime/libcontainer/errs"
	"github.com/ocibox/runtime/libcontainer/launch"
	"github.com/ocibox/runtime/libcontainer/logging"
	"github.com/ocibox/runtime/libcontainer/status"
)

// Container binds a configuration to a persisted status record.
type Container struct {
	id     string
	bundle string
	owner  string
	config *configs.Config
	dir    *status.Directory
}

// Create validates cfg, persists the initial CREATING status record, and
// returns a Container ready for Run. ctx is honored only up to the point
// the status record is persisted; the launch itself has no cancellation
// points, per the engine's concurrency model.
func Create(ctx context.Context, dir *status.Directory, id, bundle string, cfg *configs.Config) (*Container, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{id: id, bundle: bundle, config: cfg, dir: dir, owner: currentOwner()}

	if err := dir.Write(status.Record{
		ID:      id,
		PID:     0,
		Status:  status.Creating,
		Bundle:  bundle,
		Created: timeNow(),
		Owner:   c.owner,
	}); err != nil {
		return nil, err
	}
	return c, nil
}

// Run drives the full launch sequence: clone the child, run the supervisor
// handshake, wait for the payload, and, once the child has been cloned,
// always attempt poststop before returning. It persists CREATED immediately after the child is cloned,
// RUNNING the instant wait_socket_close completes (the container is about
// to execve the payload, so this is the one moment RUNNING is actually
// true), and STOPPED once the payload has been reaped.
func (c *Container) Run() (int, error) {
	cloneFlags, err := launch.GenerateCloneFlags(c.config.Namespaces)
	if err != nil {
		c.persist(status.Stopped, 0)
		return -1, err
	}

	supervisorSock, childSock, err := launch.SocketPair()
	if err != nil {
		c.persist(status.Stopped, 0)
		return -1, err
	}
	defer supervisorSock.Close()

	cmd, err := launch.StartChild(cloneFlags, launch.ChildArgs{Bundle: c.bundle}, childSock)
	childSock.Close()
	if err != nil {
		c.persist(status.Stopped, 0)
		return -1, err
	}

	pid := cmd.Process.Pid
	logging.L.Debugf("container %s: child cloned as pid %d", c.id, pid)
	if err := c.persist(status.Created, pid); err != nil {
		return -1, err
	}

	onRunning := func() {
		if err := c.persist(status.Running, pid); err != nil {
			logging.L.Warnf("container %s: failed to persist RUNNING status: %v", c.id, err)
		}
	}
	exitCode, runErr := launch.RunSupervisor(c.config, cmd, supervisorSock, c.bundle, onRunning)

	if err := c.persist(status.Stopped, pid); err != nil {
		logging.L.Warnf("container %s: failed to persist STOPPED status: %v", c.id, err)
	}

	return exitCode, runErr
}

// Open looks up an already-created container by id for exec/kill, without
// requiring its original configuration.
func Open(dir *status.Directory, id string) (*Container, error) {
	rec, err := dir.Read(id)
	if err != nil {
		return nil, err
	}
	return &Container{id: id, bundle: rec.Bundle, owner: rec.Owner, dir: dir}, nil
}

// Exec enters an already-running container's namespaces via nsenter and
// executes process, grounded verbatim in original_source's
// container_ref.cpp exec method. It returns the payload's exit code.
func (c *Container) Exec(process *configs.Process) (int, error) {
	rec, err := c.dir.Read(c.id)
	if err != nil {
		return -1, err
	}
	if rec.Status != status.Running {
		return -1, errs.Configuration(fmt.Sprintf("container %s is not running", c.id))
	}

	args := []string{
		"--target", fmt.Sprint(rec.PID),
		"--user", "--mount", "--pid",
		"--wdns", process.Cwd,
		"--preserve-credentials",
		"--",
	}
	args = append(args, process.Args...)

	cmd := exec.Command("nsenter", args...)
	cmd.Env = process.EnvList()
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, errs.Helper("nsenter", err)
	}
	return 0, nil
}

// Kill delivers sig to the container's recorded init PID.
func (c *Container) Kill(sig os.Signal) error {
	rec, err := c.dir.Read(c.id)
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(rec.PID)
	if err != nil {
		return errs.Syscall("find process", err)
	}
	if err := proc.Signal(sig); err != nil {
		return errs.Syscall("kill", err)
	}
	return nil
}

func (c *Container) persist(s status.State, pid int) error {
	rec, err := c.dir.Read(c.id)
	if err != nil {
		rec = status.Record{ID: c.id, Bundle: c.bundle, Owner: c.owner, Created: timeNow()}
	}
	if pid != 0 {
		rec.PID = pid
	}
	rec.Status = s
	return c.dir.Write(rec)
}

// List returns every known container's status record, reading the
// directory sequentially -- not a promised thread-safe operation, so no
// concurrency is introduced here.
func List(dir *status.Directory) ([]status.Record, error) {
	return dir.List()
}

func currentOwner() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return fmt.Sprintf("uid-%d", os.Getuid())
}

var timeNow = time.Now
