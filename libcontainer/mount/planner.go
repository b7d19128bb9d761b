// Package mount implements the OCI default-filesystem mount plan: user
// mounts in order, then OCI-mandated default pseudo-filesystems, then
// default device nodes, then any delayed read-only remounts. It is the Go
// analogue of original_source/linyaps_box/container.cpp's mounter class.
package mount

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/ocibox/runtime/libcontainer/configs"
	"github.com/ocibox/runtime/libcontainer/errs"
	"github.com/ocibox/runtime/libcontainer/fd"
	"github.com/ocibox/runtime/libcontainer/fsutil"
	"github.com/ocibox/runtime/libcontainer/logging"
)

// delayedRemount is a tmpfs+RDONLY mount whose final remount is deferred
// until Finalize, so that default-device creation on that tmpfs (which
// must write to it) can still happen.
type delayedRemount struct {
	destination *fd.FD
	flags       int
}

// mountSyscall is the shape of unix.Mount, factored out so the emitted
// mount(2) sequence is observable (and fakeable) in tests -- otherwise the
// plan the planner produces is only checkable by actually mounting things,
// which needs privilege the property tests in planner_test.go don't have.
type mountSyscall func(source, target, fstype string, flags uintptr, data string) error

// Planner consumes an ordered mount list and emits the corresponding
// mount(2) syscalls against a held root handle.
type Planner struct {
	root    *fd.FD
	remount []delayedRemount
	mount   mountSyscall
}

// NewPlanner creates a Planner rooted at root. root is retained, not
// copied; the caller must keep it open for the Planner's lifetime.
func NewPlanner(root *fd.FD) *Planner {
	return &Planner{root: root, mount: unix.Mount}
}

// Mount applies the per-entry algorithm of spec.md §4.3 for one mount
// list entry: auto-create the destination if missing, bind-mount-then-
// remount for MS_BIND entries, delay the RDONLY remount for tmpfs, then
// apply propagation flags.
func (p *Planner) Mount(m *configs.Mount) error {
	if m.Flags&configs.MsBind != 0 {
		return p.doBindMount(m)
	}

	destination, err := p.ensureDestination(m, false)
	if err != nil {
		return err
	}

	flags := m.Flags
	var delay *delayedRemount
	if m.Type == "tmpfs" && flags&configs.MsRdonly != 0 {
		delay = &delayedRemount{destination: destination, flags: flags | configs.MsRdonly | configs.MsRemount | configs.MsBind}
		flags &^= configs.MsRdonly
	}

	source := m.Source
	if err := p.mount(source, destination.ProcPath(), m.Type, uintptr(flags), m.Data); err != nil {
		return errs.Syscall("mount", err)
	}

	if err := p.applyPropagation(destination, m.PropagationFlags); err != nil {
		return err
	}

	if delay != nil {
		p.remount = append(p.remount, *delay)
	} else {
		destination.Close()
	}
	return nil
}

func (p *Planner) doBindMount(m *configs.Mount) error {
	openFlag := unix.O_PATH
	if m.Flags&configs.MsNosymfollow != 0 {
		openFlag |= unix.O_NOFOLLOW
	}

	source, err := fsutil.OpenAt(p.root, relative(m.Source), openFlag)
	isAbs := filepath.IsAbs(m.Source)
	if isAbs {
		source, err = openAbs(m.Source, openFlag)
	}
	if err != nil {
		return errs.Syscall("open source", err)
	}
	defer source.Close()

	var st unix.Stat_t
	if err := unix.Fstat(source.Fd(), &st); err != nil {
		return errs.Syscall("fstat", err)
	}
	isDir := st.Mode&unix.S_IFMT == unix.S_IFDIR

	destination, err := p.ensureDestination(m, !isDir)
	if err != nil {
		return err
	}

	bindFlags := m.Flags & (configs.MsBind | configs.MsRec)
	if err := p.mount(source.ProcPath(), destination.ProcPath(), m.Type, uintptr(bindFlags), m.Data); err != nil {
		destination.Close()
		return errs.Syscall("mount (bind)", err)
	}

	remountFlags := m.Flags | configs.MsRemount
	if err := p.mount(source.ProcPath(), destination.ProcPath(), m.Type, uintptr(remountFlags), m.Data); err != nil {
		destination.Close()
		return errs.Syscall("mount (remount)", err)
	}

	if err := p.applyPropagation(destination, m.PropagationFlags); err != nil {
		destination.Close()
		return err
	}
	destination.Close()
	return nil
}

func (p *Planner) applyPropagation(destination *fd.FD, flags int) error {
	if flags == 0 {
		return nil
	}
	if err := p.mount("", destination.ProcPath(), "", uintptr(flags), ""); err != nil {
		return errs.Syscall("mount (propagation)", err)
	}
	return nil
}

// ensureDestination opens the mount destination, auto-creating it beneath
// root when absent -- not part of the OCI runtime spec proper, but matches
// runc/crun and mount(8) behavior, as the teacher's corpus does.
func (p *Planner) ensureDestination(m *configs.Mount, file bool) (*fd.FD, error) {
	openFlag := unix.O_PATH
	if m.Flags&configs.MsNosymfollow != 0 {
		openFlag |= unix.O_NOFOLLOW
	}

	dest, err := fsutil.OpenAt(p.root, relative(m.Destination), openFlag)
	if err == nil {
		return dest, nil
	}
	if !fsutil.IsNotExist(err) {
		return nil, errs.Syscall("open destination", err)
	}

	if file {
		parent, err := fsutil.MkdirAllAt(p.root, relative(filepath.Dir(m.Destination)), 0o755)
		if err != nil {
			return nil, errs.Syscall("mkdir parent", err)
		}
		defer parent.Close()
		return fsutil.TouchAt(parent, filepath.Base(m.Destination))
	}
	return fsutil.MkdirAllAt(p.root, relative(m.Destination), 0o755)
}

// Finalize configures the OCI-mandated default filesystems, then the
// default device nodes, then executes every queued delayed remount in
// insertion order.
func (p *Planner) Finalize() error {
	if err := p.configureDefaultFilesystems(); err != nil {
		return err
	}
	if err := p.configureDefaultDevices(); err != nil {
		return err
	}
	for _, r := range p.remount {
		if err := p.mount("", r.destination.ProcPath(), "", uintptr(r.flags), ""); err != nil {
			r.destination.Close()
			return errs.Syscall("mount (delayed remount)", err)
		}
		r.destination.Close()
	}
	p.remount = nil
	return nil
}

func relative(p string) string {
	return filepath.Clean("/" + p)[1:]
}

func openAbs(path string, flag int) (*fd.FD, error) {
	raw, err := unix.Open(path, flag, 0)
	if err != nil {
		return nil, err
	}
	return fd.New(raw), nil
}

func statfsType(path string) (int64, error) {
	var buf unix.Statfs_t
	if err := unix.Statfs(path, &buf); err != nil {
		return 0, err
	}
	return int64(buf.Type), nil
}

func dirIsEmpty(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	names, err := f.Readdirnames(1)
	if err != nil && len(names) == 0 {
		return true, nil
	}
	return len(names) == 0, nil
}

const (
	procSuperMagic = 0x9fa0
	sysfsMagic     = 0x62656572
	tmpfsMagic     = 0x01021994
)

func (p *Planner) configureDefaultFilesystems() error {
	if err := p.ensureProc(); err != nil {
		return err
	}
	if err := p.ensureSys(); err != nil {
		return err
	}
	if err := p.ensureDev(); err != nil {
		return err
	}
	if err := p.ensureDevPts(); err != nil {
		return err
	}
	if err := p.ensureDevShm(); err != nil {
		return err
	}
	return nil
}

func (p *Planner) ensureProc() error {
	h, err := fsutil.OpenAt(p.root, "proc", unix.O_PATH)
	if err != nil {
		if !fsutil.IsNotExist(err) {
			return errs.Syscall("open proc", err)
		}
	} else {
		t, err := statfsType(h.ProcPath())
		h.Close()
		if err != nil {
			return errs.Syscall("statfs", err)
		}
		if t == procSuperMagic {
			return nil
		}
	}
	return p.Mount(&configs.Mount{Source: "proc", Type: "proc", Destination: "/proc"})
}

func (p *Planner) ensureSys() error {
	h, err := fsutil.OpenAt(p.root, "sys", unix.O_PATH)
	if err != nil {
		if !fsutil.IsNotExist(err) {
			return errs.Syscall("open sys", err)
		}
	} else {
		t, err := statfsType(h.ProcPath())
		h.Close()
		if err != nil {
			return errs.Syscall("statfs", err)
		}
		if t == sysfsMagic {
			return nil
		}
	}

	err = p.Mount(&configs.Mount{
		Source:      "sysfs",
		Type:        "sysfs",
		Destination: "/sys",
		Flags:       configs.MsNosuid | configs.MsNoexec | configs.MsNodev,
	})
	if err == nil {
		return nil
	}
	if !fsutil.IsPermission(err) {
		return err
	}

	logging.L.Debug("sysfs mount denied, falling back to recursive bind of host /sys")
	return p.Mount(&configs.Mount{
		Source:      "/sys",
		Type:        "bind",
		Destination: "/sys",
		Flags:       configs.MsBind | configs.MsRec | configs.MsNosuid | configs.MsNoexec | configs.MsNodev,
	})
}

func (p *Planner) ensureDev() error {
	h, err := fsutil.OpenAt(p.root, "dev", unix.O_PATH)
	if err != nil {
		if !fsutil.IsNotExist(err) {
			return errs.Syscall("open dev", err)
		}
	} else {
		t, statErr := statfsType(h.ProcPath())
		procPath := h.ProcPath()
		h.Close()
		if statErr != nil {
			return errs.Syscall("statfs", statErr)
		}
		if t == tmpfsMagic {
			return nil
		}
		empty, err := dirIsEmpty(procPath)
		if err != nil {
			return errs.Syscall("readdir", err)
		}
		if !empty {
			return nil
		}
	}

	return p.Mount(&configs.Mount{
		Source:      "tmpfs",
		Type:        "tmpfs",
		Destination: "/dev",
		Flags:       configs.MsNosuid | configs.MsStrictatime | configs.MsNodev,
		Data:        "mode=755,size=65536k",
	})
}

func (p *Planner) ensureDevPts() error {
	if h, err := fsutil.OpenAt(p.root, "dev/pts", unix.O_PATH); err == nil {
		h.Close()
		return nil
	} else if !fsutil.IsNotExist(err) {
		return errs.Syscall("open dev/pts", err)
	}

	return p.Mount(&configs.Mount{
		Source:      "devpts",
		Type:        "devpts",
		Destination: "/dev/pts",
		Flags:       configs.MsNosuid | configs.MsNoexec,
		Data:        "newinstance,ptmxmode=0666,mode=0620",
	})
}

func (p *Planner) ensureDevShm() error {
	if h, err := fsutil.OpenAt(p.root, "dev/shm", unix.O_PATH); err == nil {
		h.Close()
		return nil
	} else if !fsutil.IsNotExist(err) {
		return errs.Syscall("open dev/shm", err)
	}

	return p.Mount(&configs.Mount{
		Source:      "shm",
		Type:        "tmpfs",
		Destination: "/dev/shm",
		Flags:       configs.MsNosuid | configs.MsNoexec | configs.MsNodev,
		Data:        "mode=1777,size=65536k",
	})
}

type defaultDevice struct {
	path       string
	mode       uint32
	major, minor uint32
}

var defaultDevices = []defaultDevice{
	{"/dev/null", 0o666, 1, 3},
	{"/dev/zero", 0o666, 1, 5},
	{"/dev/full", 0o666, 1, 7},
	{"/dev/random", 0o666, 1, 8},
	{"/dev/urandom", 0o666, 1, 9},
	{"/dev/tty", 0o666, 5, 0},
}

func (p *Planner) configureDefaultDevices() error {
	for _, d := range defaultDevices {
		if err := p.configureDevice(d); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) configureDevice(d defaultDevice) error {
	rel := relative(d.path)
	if h, err := fsutil.OpenAt(p.root, rel, unix.O_PATH); err == nil {
		var st unix.Stat_t
		statErr := unix.Fstat(h.Fd(), &st)
		h.Close()
		if statErr != nil {
			return errs.Syscall("fstat device", statErr)
		}
		if st.Mode&unix.S_IFMT == unix.S_IFCHR && unix.Major(uint64(st.Rdev)) == d.major && unix.Minor(uint64(st.Rdev)) == d.minor {
			return nil
		}
		// Wrong node (or not a character device) at this path: remove it
		// and recreate it with the expected major/minor.
		if err := unix.Unlinkat(p.root.Fd(), rel, 0); err != nil {
			return errs.Syscall("unlink stale device", err)
		}
	} else if !fsutil.IsNotExist(err) {
		return errs.Syscall("open device", err)
	}

	dev := unix.Mkdev(d.major, d.minor)
	mknodErr := fsutil.MknodAt(p.root, rel, unix.S_IFCHR|d.mode, dev)
	if mknodErr == nil {
		return nil
	}
	if !fsutil.IsPermission(mknodErr) {
		return mknodErr
	}

	logging.L.Debugf("mknod %s denied, falling back to bind mount of host device", d.path)
	return p.Mount(&configs.Mount{
		Source:      d.path,
		Type:        "bind",
		Destination: d.path,
		Flags:       configs.MsBind | configs.MsRec | configs.MsNosuid | configs.MsNoexec | configs.MsNodev,
	})
}
