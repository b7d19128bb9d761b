// External test package: this scenario drives Container through the same
// bundle-loading path cmd/ocibox/command.Run uses, and needs no access to
// Container's unexported fields.
package container_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ocibox/runtime/cmd/ocibox/bundle"
	"github.com/ocibox/runtime/libcontainer/container"
	"github.com/ocibox/runtime/libcontainer/status"
)

// minimalBundleConfig describes a container whose rootfs is the host's own
// "/", isolated only by a mount namespace -- enough for pivot_root's
// documented "new_root and old_root are the same" trick to apply, without
// needing a throwaway userland just to run /bin/true.
const minimalBundleConfig = `{
	"ociVersion": "1.0.2",
	"root": {"path": "/", "readonly": false},
	"process": {"args": ["/bin/true"], "cwd": "/"},
	"linux": {"namespaces": [{"type": "mount"}]}
}`

// TestRunObservesRunningBeforeStopped is the end-to-end scenario: create and
// run a minimal container, and confirm an external reader of the status
// directory can see it pass through RUNNING while the payload is actually
// running, not just CREATED followed immediately by STOPPED. It needs
// CAP_SYS_ADMIN (clone(CLONE_NEWNS) and pivot_root), so it is skipped unless
// explicitly opted into.
func TestRunObservesRunningBeforeStopped(t *testing.T) {
	if os.Getenv("OCIBOX_TEST_PRIVILEGED") != "1" {
		t.Skip("set OCIBOX_TEST_PRIVILEGED=1 to run namespace-privileged container tests")
	}

	bundleDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, "config.json"), []byte(minimalBundleConfig), 0o644))

	cfg, err := bundle.Load(bundleDir)
	require.NoError(t, err)

	dir, err := status.New(t.TempDir())
	require.NoError(t, err)

	c, err := container.Create(context.Background(), dir, "scenario-1", bundleDir, cfg)
	require.NoError(t, err)

	stopPoll := make(chan struct{})
	pollDone := make(chan struct{})
	sawRunning := false
	go func() {
		defer close(pollDone)
		for {
			select {
			case <-stopPoll:
				return
			default:
			}
			if rec, err := dir.Read("scenario-1"); err == nil && rec.Status == status.Running {
				sawRunning = true
			}
			time.Sleep(time.Millisecond)
		}
	}()

	exitCode, runErr := c.Run()
	close(stopPoll)
	<-pollDone

	require.NoError(t, runErr)
	require.Equal(t, 0, exitCode)
	require.True(t, sawRunning, "never observed RUNNING status while the container was running")

	rec, err := dir.Read("scenario-1")
	require.NoError(t, err)
	require.Equal(t, status.Stopped, rec.Status)
}
