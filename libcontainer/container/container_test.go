package container

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocibox/runtime/libcontainer/configs"
	"github.com/ocibox/runtime/libcontainer/status"
)

func testConfig() *configs.Config {
	return &configs.Config{
		Rootfs:     "/tmp/does-not-matter",
		Namespaces: configs.Namespaces{{Type: configs.NEWNS}, {Type: configs.NEWPID}},
		Process:    &configs.Process{Args: []string{"/bin/true"}, Cwd: "/"},
	}
}

func TestCreatePersistsCreatingStatus(t *testing.T) {
	dir, err := status.New(t.TempDir())
	require.NoError(t, err)

	c, err := Create(context.Background(), dir, "abc", "/bundles/abc", testConfig())
	require.NoError(t, err)
	require.NotNil(t, c)

	rec, err := dir.Read("abc")
	require.NoError(t, err)
	require.Equal(t, status.Creating, rec.Status)
	require.Equal(t, 0, rec.PID)
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	dir, err := status.New(t.TempDir())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Namespaces = configs.Namespaces{{Type: configs.NEWPID}, {Type: configs.NEWPID}}

	_, err = Create(context.Background(), dir, "dup", "/bundles/dup", cfg)
	require.Error(t, err)

	_, readErr := dir.Read("dup")
	require.Error(t, readErr, "no status record should be persisted for a config that never validated")
}

func TestKillOnUnknownContainerFails(t *testing.T) {
	dir, err := status.New(t.TempDir())
	require.NoError(t, err)
	c := &Container{id: "ghost", bundle: "/bundles/ghost", config: testConfig(), dir: dir}

	require.Error(t, c.Kill(nil))
}

func TestListReflectsPersistedRecords(t *testing.T) {
	dir, err := status.New(t.TempDir())
	require.NoError(t, err)

	_, err = Create(context.Background(), dir, "one", "/bundles/one", testConfig())
	require.NoError(t, err)
	_, err = Create(context.Background(), dir, "two", "/bundles/two", testConfig())
	require.NoError(t, err)

	records, err := List(dir)
	require.NoError(t, err)
	require.Len(t, records, 2)
}
