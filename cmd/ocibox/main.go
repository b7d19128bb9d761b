// Command ocibox is the CLI surface for the launch engine: an OCI-style
// low-level runtime invoked by a higher-level container manager, in the
// same role as runc or crun.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ocibox/runtime/cmd/ocibox/command"
	"github.com/ocibox/runtime/libcontainer/logging"
)

func main() {
	app := &cli.App{
		Name:  "ocibox",
		Usage: "create, observe, signal and execute OCI containers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "root",
				Value: defaultRoot(),
				Usage: "status directory root",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logging.SetDebug(true)
			}
			return nil
		},
		Commands: []*cli.Command{
			command.List,
			command.Run,
			command.Exec,
			command.Kill,
			command.InitChild,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func defaultRoot() string {
	if os.Getuid() == 0 {
		return "/run/ocibox"
	}
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return xdg + "/ocibox"
	}
	return "/tmp/ocibox-" + os.Getenv("USER")
}

func exitCodeFor(err error) int {
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	return -1
}
