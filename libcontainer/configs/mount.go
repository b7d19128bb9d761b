package configs

// Mount describes one entry of the ordered mount list. Destinations are
// interpreted relative to the future root. Mirrors spec.md §3's mount
// tuple; flags/propagation_flags are the syscall bitmasks the bundle loader
// (cmd/ocibox/bundle) has already converted from the OCI option strings.
type Mount struct {
	// Source is the mount source; absent for mounts like proc/tmpfs that
	// have none.
	Source string `json:"source,omitempty"`

	// Destination is an absolute path inside the container root.
	Destination string `json:"destination"`

	// Type is the filesystem type passed to mount(2), or "bind" for a
	// plain bind mount.
	Type string `json:"type"`

	// Data is the filesystem-specific mount(2) data string.
	Data string `json:"data,omitempty"`

	// Flags is the mount(2) flags bitmask (MS_BIND, MS_RDONLY, ...).
	Flags int `json:"flags"`

	// PropagationFlags is applied as a separate mount(2) syscall against
	// the destination after the primary mount (MS_PRIVATE/SLAVE/SHARED/
	// UNBINDABLE, optionally MS_REC).
	PropagationFlags int `json:"propagation_flags,omitempty"`
}

// IsBind reports whether m establishes a bind mount.
func (m *Mount) IsBind() bool {
	return m.Flags&MsBind != 0
}

// Mount(2) flag constants used by the planner and the bundle loader. Named
// locally (rather than imported from golang.org/x/sys/unix, which lacks a
// few of these as typed constants under convenient names) so that
// mount.go and the OCI option-string converter share one vocabulary.
const (
	MsRdonly     = 1 << 0
	MsNosuid     = 1 << 1
	MsNodev      = 1 << 2
	MsNoexec     = 1 << 3
	MsRemount    = 1 << 5
	MsBind       = 1 << 12
	MsRec        = 1 << 14
	MsStrictatime = 1 << 24

	MsShared     = 1 << 20
	MsPrivate    = 1 << 18
	MsSlave      = 1 << 19
	MsUnbindable = 1 << 17

	MsNosymfollow = 1 << 8
)
