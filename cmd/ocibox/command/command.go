// Package command implements the ocibox CLI's subcommands.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ocibox/runtime/cmd/ocibox/bundle"
	"github.com/ocibox/runtime/libcontainer/configs"
	"github.com/ocibox/runtime/libcontainer/container"
	"github.com/ocibox/runtime/libcontainer/fd"
	"github.com/ocibox/runtime/libcontainer/launch"
	"github.com/ocibox/runtime/libcontainer/status"
)

func statusDir(c *cli.Context) (*status.Directory, error) {
	return status.New(c.String("root"))
}

// List prints every known container's status record as JSON.
var List = &cli.Command{
	Name:  "list",
	Usage: "print the set of known container statuses",
	Action: func(c *cli.Context) error {
		dir, err := statusDir(c)
		if err != nil {
			return err
		}
		records, err := container.List(dir)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	},
}

// Run creates and starts a container from a bundle, blocking until exit.
var Run = &cli.Command{
	Name:      "run",
	Usage:     "create and start a container from a bundle",
	ArgsUsage: "<id>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "bundle", Aliases: []string{"b"}, Value: ".", Usage: "path to the OCI bundle"},
	},
	Action: func(c *cli.Context) error {
		id := c.Args().First()
		if id == "" {
			return cli.Exit("run requires a container id", 1)
		}

		dir, err := statusDir(c)
		if err != nil {
			return err
		}
		bundlePath := c.String("bundle")
		cfg, err := bundle.Load(bundlePath)
		if err != nil {
			return err
		}

		co, err := container.Create(context.Background(), dir, id, bundlePath, cfg)
		if err != nil {
			return err
		}

		exitCode, runErr := co.Run()
		if runErr != nil {
			return fmt.Errorf("run %s: %w", id, runErr)
		}
		// The payload's own exit code is not a CLI failure: exit directly
		// rather than returning an error urfave/cli would print as one.
		os.Exit(exitCode)
		return nil
	},
}

// Exec enters an existing container's namespaces and executes a process.
var Exec = &cli.Command{
	Name:      "exec",
	Usage:     "enter an existing container and execute a process",
	ArgsUsage: "<id> <cmd> [args...]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "cwd", Value: "/"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 {
			return cli.Exit("exec requires a container id and a command", 1)
		}
		id := c.Args().First()
		payload := c.Args().Slice()[1:]

		dir, err := statusDir(c)
		if err != nil {
			return err
		}
		co, err := container.Open(dir, id)
		if err != nil {
			return err
		}

		proc := &configs.Process{Args: payload, Cwd: c.String("cwd"), Env: map[string]string{}}
		exitCode, execErr := co.Exec(proc)
		if execErr != nil {
			return execErr
		}
		// As with run, the payload's own exit code is not a CLI failure.
		os.Exit(exitCode)
		return nil
	},
}

// Kill delivers a signal to the container's init process.
var Kill = &cli.Command{
	Name:      "kill",
	Usage:     "deliver a signal to the container's init process",
	ArgsUsage: "<id> <signal>",
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 {
			return cli.Exit("kill requires a container id and a signal", 1)
		}
		id := c.Args().Get(0)
		sig, err := parseSignal(c.Args().Get(1))
		if err != nil {
			return err
		}

		dir, err := statusDir(c)
		if err != nil {
			return err
		}
		co, err := container.Open(dir, id)
		if err != nil {
			return err
		}
		return co.Kill(sig)
	},
}

// InitChild is the hidden re-exec entrypoint StartChild launches as the
// container's clone(2) equivalent. It is never invoked directly by a user.
var InitChild = &cli.Command{
	Name:   "init-child",
	Hidden: true,
	Action: func(c *cli.Context) error {
		bundlePath := c.Args().First()
		cfg, err := bundle.Load(bundlePath)
		if err != nil {
			return err
		}
		return launch.RunChild(cfg, childSyncSocket())
	},
}

func parseSignal(s string) (syscall.Signal, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return syscall.Signal(n), nil
	}
	if sig, ok := namedSignals[s]; ok {
		return sig, nil
	}
	return 0, fmt.Errorf("unknown signal %q", s)
}

var namedSignals = map[string]syscall.Signal{
	"SIGTERM": syscall.SIGTERM,
	"SIGKILL": syscall.SIGKILL,
	"SIGINT":  syscall.SIGINT,
	"SIGHUP":  syscall.SIGHUP,
	"SIGUSR1": syscall.SIGUSR1,
	"SIGUSR2": syscall.SIGUSR2,
	"SIGSTOP": syscall.SIGSTOP,
	"SIGCONT": syscall.SIGCONT,
}

// childSyncSocket wraps the file descriptor StartChild placed in the first
// ExtraFiles slot (fd 3, since 0-2 are stdio) as the sync socket.
func childSyncSocket() *fd.FD {
	return fd.New(3)
}
