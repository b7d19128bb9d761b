// Package status implements the status directory: one JSON record per
// container id, written atomically via a tempfile-then-rename, the Go
// analogue of original_source/impl/status_directory.cpp.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ocibox/runtime/libcontainer/errs"
	"github.com/ocibox/runtime/libcontainer/logging"
)

// State is a container's lifecycle status. Transitions only ever move
// forward along CREATING -> CREATED -> RUNNING -> STOPPED.
type State string

const (
	Creating State = "CREATING"
	Created  State = "CREATED"
	Running  State = "RUNNING"
	Stopped  State = "STOPPED"
)

var order = map[State]int{Creating: 0, Created: 1, Running: 2, Stopped: 3}

// Advances reports whether moving from s to next is a valid forward (or
// no-op) transition.
func (s State) Advances(next State) bool {
	return order[next] >= order[s]
}

// Record is one container's persisted status.
type Record struct {
	ID          string            `json:"id"`
	PID         int               `json:"pid"`
	Status      State             `json:"status"`
	Bundle      string            `json:"bundle"`
	Created     time.Time         `json:"created"`
	Owner       string            `json:"owner"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Directory is a collaborator binding container ids to status files under
// Path, one file per id named "<id>.json".
type Directory struct {
	Path string
}

// New returns a Directory rooted at path, creating it if absent.
func New(path string) (*Directory, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, errs.Syscall("mkdir status dir", err)
	}
	return &Directory{Path: path}, nil
}

func (d *Directory) file(id string) string {
	return filepath.Join(d.Path, id+".json")
}

// Write persists r atomically: encode to a tempfile in the same directory,
// then rename over the final path, so a concurrent reader either sees the
// old content or the new content in full, never a partial write.
func (d *Directory) Write(r Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal status record: %w", err)
	}

	tmp, err := os.CreateTemp(d.Path, "."+r.ID+".*.tmp")
	if err != nil {
		return errs.Syscall("create temp status file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.Syscall("write temp status file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.Syscall("close temp status file", err)
	}
	if err := os.Rename(tmpName, d.file(r.ID)); err != nil {
		os.Remove(tmpName)
		return errs.Syscall("rename status file", err)
	}
	return nil
}

// Read loads the record for id.
func (d *Directory) Read(id string) (Record, error) {
	b, err := os.ReadFile(d.file(id))
	if err != nil {
		return Record{}, errs.Syscall("read status file", err)
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, fmt.Errorf("unmarshal status record %s: %w", id, err)
	}
	return r, nil
}

// Remove deletes the record for id. Removing an absent id is not an error.
func (d *Directory) Remove(id string) error {
	if err := os.Remove(d.file(id)); err != nil && !os.IsNotExist(err) {
		return errs.Syscall("remove status file", err)
	}
	return nil
}

// List reads every record in the directory, skipping non-".json" entries
// and logging-and-continuing on a per-entry read failure -- callers see a
// best-effort snapshot, not a transactional one, matching the collaborator
// contract spec.md promises ("tolerates transient partial writes").
func (d *Directory) List() ([]Record, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, errs.Syscall("readdir status dir", err)
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		r, err := d.Read(id)
		if err != nil {
			logging.L.Warnf("status: skipping %s: %v", e.Name(), err)
			continue
		}
		records = append(records, r)
	}
	return records, nil
}
