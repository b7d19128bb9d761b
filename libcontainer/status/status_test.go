package status

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)

	r := Record{
		ID:          "abc123",
		PID:         4242,
		Status:      Running,
		Bundle:      "/var/lib/bundles/abc123",
		Created:     time.Now().UTC().Truncate(time.Second),
		Owner:       "root",
		Annotations: map[string]string{"k": "v"},
	}

	require.NoError(t, dir.Write(r))
	got, err := dir.Read("abc123")
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestListSkipsNonJSONAndBadEntries(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, dir.Write(Record{ID: "good", Status: Created}))
	require.NoError(t, writeRaw(dir, "stray.txt", "not json"))
	require.NoError(t, writeRaw(dir, "bad.json", "{not valid json"))

	records, err := dir.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "good", records[0].ID)
}

func TestRemoveAbsentIsNotError(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, dir.Remove("never-existed"))
}

func TestStateMonotonicity(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{Creating, Created, true},
		{Created, Running, true},
		{Running, Stopped, true},
		{Creating, Stopped, true},
		{Created, Created, true},
		{Running, Creating, false},
		{Stopped, Running, false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.from.Advances(c.to), "%s -> %s", c.from, c.to)
	}
}

func writeRaw(dir *Directory, name, content string) error {
	return os.WriteFile(dir.Path+"/"+name, []byte(content), 0o644)
}
