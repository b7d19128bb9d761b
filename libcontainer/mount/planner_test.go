package mount

import (
	"testing"

	"github.com/ocibox/runtime/libcontainer/configs"
	"github.com/ocibox/runtime/libcontainer/fsutil"
)

func TestRelative(t *testing.T) {
	cases := map[string]string{
		"/proc":     "proc",
		"proc":      "proc",
		"/dev/pts":  "dev/pts",
		"/":         "",
		"dev/shm/":  "dev/shm",
	}
	for in, want := range cases {
		if got := relative(in); got != want {
			t.Errorf("relative(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDefaultDevicesCoverOCIRequiredSet(t *testing.T) {
	want := map[string]bool{
		"/dev/null": true, "/dev/zero": true, "/dev/full": true,
		"/dev/random": true, "/dev/urandom": true, "/dev/tty": true,
	}
	for _, d := range defaultDevices {
		if !want[d.path] {
			t.Errorf("unexpected default device %s", d.path)
		}
		delete(want, d.path)
	}
	if len(want) != 0 {
		t.Errorf("missing default devices: %v", want)
	}
}

// recordedCall is one emitted mount(2) call, captured in place of the real
// syscall. target is deliberately excluded from equality checks: it is a
// /proc/self/fd/<n> path whose <n> depends on fd allocation order, not on
// the plan itself.
type recordedCall struct {
	source, fstype string
	flags          uintptr
	data           string
}

// newRecordingPlanner builds a Planner rooted at a fresh temp directory
// whose mount syscall is replaced with one that records calls instead of
// touching the kernel, so the plan it emits is observable without
// CAP_SYS_ADMIN.
func newRecordingPlanner(t *testing.T) (*Planner, *[]recordedCall) {
	t.Helper()
	root, err := fsutil.OpenRoot(t.TempDir())
	if err != nil {
		t.Fatalf("OpenRoot: %v", err)
	}
	t.Cleanup(func() { root.Close() })

	calls := &[]recordedCall{}
	p := NewPlanner(root)
	p.mount = func(source, target, fstype string, flags uintptr, data string) error {
		*calls = append(*calls, recordedCall{source: source, fstype: fstype, flags: flags, data: data})
		return nil
	}
	return p, calls
}

// TestMountPlanIsDeterministic feeds the same mount list to two
// independently rooted Planners and checks they emit identical call
// sequences: the plan depends only on the input list, never on incidental
// state like fd numbers or directory iteration order.
func TestMountPlanIsDeterministic(t *testing.T) {
	plan := func() []*configs.Mount {
		return []*configs.Mount{
			{Source: "proc", Type: "proc", Destination: "/proc"},
			{
				Source: "tmpfs", Type: "tmpfs", Destination: "/dev",
				Flags: configs.MsNosuid | configs.MsStrictatime | configs.MsNodev,
				Data:  "mode=755,size=65536k",
			},
			{
				Source: "/dev/null", Type: "bind", Destination: "/etc/resolv.conf",
				Flags: configs.MsBind | configs.MsRec,
			},
		}
	}

	run := func() []recordedCall {
		p, calls := newRecordingPlanner(t)
		for _, m := range plan() {
			if err := p.Mount(m); err != nil {
				t.Fatalf("Mount(%+v): %v", m, err)
			}
		}
		return *calls
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("call count differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		ca, cb := a[i], b[i]
		ca.source, cb.source = normalizeSource(ca.source), normalizeSource(cb.source)
		if ca != cb {
			t.Errorf("call %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

// normalizeSource strips the fd-number-dependent parts of a /proc/self/fd
// source string so two independently-run plans can be compared by shape
// rather than by incidental fd allocation.
func normalizeSource(s string) string {
	if len(s) >= len("/proc/self/fd/") && s[:len("/proc/self/fd/")] == "/proc/self/fd/" {
		return "/proc/self/fd/*"
	}
	return s
}

// TestDelayedRemountAppliesAfterMount covers the tmpfs+MS_RDONLY case: the
// initial mount must land without MS_RDONLY (so default-device creation on
// it can still write), and once Finalize has run, exactly one
// BIND|REMOUNT|RDONLY remount must follow the initial mount.
func TestDelayedRemountAppliesAfterMount(t *testing.T) {
	p, calls := newRecordingPlanner(t)

	m := &configs.Mount{
		Source: "tmpfs", Type: "tmpfs", Destination: "/data",
		Flags: configs.MsRdonly,
		Data:  "size=1024k",
	}
	if err := p.Mount(m); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	mountIdx := -1
	for i, c := range *calls {
		if c.fstype == "tmpfs" && c.data == "size=1024k" {
			mountIdx = i
		}
	}
	if mountIdx == -1 {
		t.Fatal("initial tmpfs mount not recorded")
	}
	if (*calls)[mountIdx].flags&configs.MsRdonly != 0 {
		t.Errorf("initial mount must not carry MS_RDONLY, got flags %#x", (*calls)[mountIdx].flags)
	}

	if err := p.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	wantRemount := uintptr(configs.MsRdonly | configs.MsRemount | configs.MsBind)
	remountIdx, remountCount := -1, 0
	for i, c := range *calls {
		if i <= mountIdx {
			continue
		}
		if c.flags == wantRemount && c.source == "" && c.fstype == "" {
			remountIdx, remountCount = i, remountCount+1
		}
	}
	if remountCount != 1 {
		t.Fatalf("expected exactly one delayed remount call, found %d", remountCount)
	}
	if remountIdx < mountIdx {
		t.Errorf("remount at index %d must follow initial mount at index %d", remountIdx, mountIdx)
	}
}
