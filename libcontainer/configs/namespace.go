package configs

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ocibox/runtime/libcontainer/errs"
)

// NamespaceType identifies one of the Linux namespace kinds the launch
// engine knows how to request. Mirrors the teacher corpus's
// configs.NamespaceType (see libmocktainer).
type NamespaceType string

const (
	NEWNS    NamespaceType = "MOUNT"
	NEWIPC   NamespaceType = "IPC"
	NEWUTS   NamespaceType = "UTS"
	NEWPID   NamespaceType = "PID"
	NEWNET   NamespaceType = "NET"
	NEWUSER  NamespaceType = "USER"
	NEWCGROUP NamespaceType = "CGROUP"
)

// namespaceFlags maps every known namespace type to its clone(2) flag.
var namespaceFlags = map[NamespaceType]uintptr{
	NEWNS:     unix.CLONE_NEWNS,
	NEWIPC:    unix.CLONE_NEWIPC,
	NEWUTS:    unix.CLONE_NEWUTS,
	NEWPID:    unix.CLONE_NEWPID,
	NEWNET:    unix.CLONE_NEWNET,
	NEWUSER:   unix.CLONE_NEWUSER,
	NEWCGROUP: unix.CLONE_NEWCGROUP,
}

// Namespace is a single namespace that should be entered or created.
type Namespace struct {
	Type NamespaceType `json:"type"`

	// Path records the namespace path given in config.json so it
	// round-trips. The launch engine does not join it: every listed type
	// gets a new namespace, whether or not Path is set.
	Path string `json:"path,omitempty"`
}

// Namespaces is an ordered list of namespace requests.
type Namespaces []Namespace

// CloneFlags computes the combined clone(2) flag set for ns, failing
// before any side effect if a type repeats or is unknown. Per spec.md's
// invariant 1 and the namespace-flag-bijection property: the result is a
// pure function of the (duplicate-free) set, independent of order.
func (ns Namespaces) CloneFlags() (uintptr, error) {
	var flags uintptr
	seen := make(map[NamespaceType]bool, len(ns))
	for _, n := range ns {
		flag, ok := namespaceFlags[n.Type]
		if !ok {
			return 0, errs.Configuration(fmt.Sprintf("unknown namespace type %q", n.Type))
		}
		if seen[n.Type] {
			return 0, errs.Configuration(fmt.Sprintf("duplicate namespace type %q", n.Type))
		}
		seen[n.Type] = true
		flags |= flag
	}
	return flags, nil
}

// Contains reports whether t is requested.
func (ns Namespaces) Contains(t NamespaceType) bool {
	for _, n := range ns {
		if n.Type == t {
			return true
		}
	}
	return false
}

// Get returns the namespace entry of type t, if present.
func (ns Namespaces) Get(t NamespaceType) (Namespace, bool) {
	for _, n := range ns {
		if n.Type == t {
			return n, true
		}
	}
	return Namespace{}, false
}
