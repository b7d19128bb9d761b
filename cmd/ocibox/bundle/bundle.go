// Package bundle loads an OCI bundle's config.json into a
// *configs.Config, converting OCI mount-option strings into the syscall
// bitmask the mount planner consumes and canonicalizing paths.
package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/opencontainers/cgroups"
	"github.com/opencontainers/runtime-spec/specs-go"

	"github.com/ocibox/runtime/libcontainer/configs"
	"github.com/ocibox/runtime/libcontainer/errs"
)

// Load reads <path>/config.json and converts it into a *configs.Config
// whose Rootfs is canonicalized relative to path.
func Load(path string) (*configs.Config, error) {
	b, err := os.ReadFile(filepath.Join(path, "config.json"))
	if err != nil {
		return nil, errs.Syscall("read config.json", err)
	}

	var spec specs.Spec
	if err := json.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("parse config.json: %w", err)
	}

	cfg, err := convert(&spec, path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func convert(spec *specs.Spec, bundlePath string) (*configs.Config, error) {
	cfg := &configs.Config{}

	if spec.Root != nil {
		root := spec.Root.Path
		if !filepath.IsAbs(root) {
			root = filepath.Join(bundlePath, root)
		}
		cfg.Rootfs = filepath.Clean(root)
		cfg.Readonlyfs = spec.Root.Readonly
	}

	if spec.Linux != nil {
		ns, err := convertNamespaces(spec.Linux.Namespaces)
		if err != nil {
			return nil, err
		}
		cfg.Namespaces = ns
		cfg.MaskPaths = append([]string(nil), spec.Linux.MaskedPaths...)
		cfg.ReadonlyPaths = append([]string(nil), spec.Linux.ReadonlyPaths...)
		cfg.UIDMappings = convertIDMappings(spec.Linux.UIDMappings)
		cfg.GIDMappings = convertIDMappings(spec.Linux.GIDMappings)
		cfg.Hooks = convertHooks(spec.Hooks)
		if spec.Linux.Resources != nil {
			cfg.Cgroups = &cgroups.Cgroup{Resources: &cgroups.Resources{}}
		}
	}

	for _, m := range spec.Mounts {
		flags, data, propagation := parseMountOptions(m.Options)
		cfg.Mounts = append(cfg.Mounts, &configs.Mount{
			Source:           m.Source,
			Destination:      filepath.Clean(m.Destination),
			Type:             m.Type,
			Data:             data,
			Flags:            flags,
			PropagationFlags: propagation,
		})
	}

	if spec.Hostname != "" {
		cfg.Hostname = spec.Hostname
	}
	if spec.Domainname != "" {
		cfg.Domainname = spec.Domainname
	}

	if spec.Process != nil {
		env := map[string]string{}
		for _, kv := range spec.Process.Env {
			if k, v, ok := strings.Cut(kv, "="); ok {
				env[k] = v
			}
		}
		var uid, gid uint32
		var additional []uint32
		if spec.Process.User.UID != 0 || spec.Process.User.GID != 0 {
			uid = spec.Process.User.UID
			gid = spec.Process.User.GID
		}
		for _, g := range spec.Process.User.AdditionalGids {
			additional = append(additional, g)
		}
		cfg.Process = &configs.Process{
			Args:           append([]string(nil), spec.Process.Args...),
			Env:            env,
			Cwd:            spec.Process.Cwd,
			UID:            uid,
			GID:            gid,
			AdditionalGids: additional,
		}
		cfg.OomScoreAdj = spec.Process.OOMScoreAdj
		cfg.Rlimits = convertRlimits(spec.Process.Rlimits)
	}

	return cfg, nil
}

func convertRlimits(in []specs.POSIXRlimit) []configs.Rlimit {
	out := make([]configs.Rlimit, 0, len(in))
	for _, r := range in {
		t, ok := rlimitTypes[r.Type]
		if !ok {
			continue
		}
		out = append(out, configs.Rlimit{Type: t, Hard: r.Hard, Soft: r.Soft})
	}
	return out
}

// rlimitTypes maps the OCI spec's RLIMIT_* string names onto the
// platform's numeric resource constants.
var rlimitTypes = map[string]int{
	"RLIMIT_CPU":        unix.RLIMIT_CPU,
	"RLIMIT_FSIZE":      unix.RLIMIT_FSIZE,
	"RLIMIT_DATA":       unix.RLIMIT_DATA,
	"RLIMIT_STACK":      unix.RLIMIT_STACK,
	"RLIMIT_CORE":       unix.RLIMIT_CORE,
	"RLIMIT_RSS":        unix.RLIMIT_RSS,
	"RLIMIT_NPROC":      unix.RLIMIT_NPROC,
	"RLIMIT_NOFILE":     unix.RLIMIT_NOFILE,
	"RLIMIT_MEMLOCK":    unix.RLIMIT_MEMLOCK,
	"RLIMIT_AS":         unix.RLIMIT_AS,
	"RLIMIT_LOCKS":      unix.RLIMIT_LOCKS,
	"RLIMIT_SIGPENDING": unix.RLIMIT_SIGPENDING,
	"RLIMIT_MSGQUEUE":   unix.RLIMIT_MSGQUEUE,
	"RLIMIT_NICE":       unix.RLIMIT_NICE,
	"RLIMIT_RTPRIO":     unix.RLIMIT_RTPRIO,
	"RLIMIT_RTTIME":     unix.RLIMIT_RTTIME,
}

func convertNamespaces(in []specs.LinuxNamespace) (configs.Namespaces, error) {
	out := make(configs.Namespaces, 0, len(in))
	for _, n := range in {
		t, err := convertNamespaceType(n.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, configs.Namespace{Type: t, Path: n.Path})
	}
	return out, nil
}

func convertNamespaceType(t specs.LinuxNamespaceType) (configs.NamespaceType, error) {
	switch t {
	case specs.MountNamespace:
		return configs.NEWNS, nil
	case specs.IPCNamespace:
		return configs.NEWIPC, nil
	case specs.UTSNamespace:
		return configs.NEWUTS, nil
	case specs.PIDNamespace:
		return configs.NEWPID, nil
	case specs.NetworkNamespace:
		return configs.NEWNET, nil
	case specs.UserNamespace:
		return configs.NEWUSER, nil
	case specs.CgroupNamespace:
		return configs.NEWCGROUP, nil
	default:
		return "", errs.Configuration(fmt.Sprintf("unknown namespace type %q", t))
	}
}

func convertIDMappings(in []specs.LinuxIDMapping) []configs.IDMap {
	out := make([]configs.IDMap, 0, len(in))
	for _, m := range in {
		out = append(out, configs.IDMap{
			ContainerID: int64(m.ContainerID),
			HostID:      int64(m.HostID),
			Size:        int64(m.Size),
		})
	}
	return out
}

func convertHooks(h *specs.Hooks) configs.Hooks {
	out := configs.Hooks{}
	if h == nil {
		return out
	}
	add := func(name configs.HookName, hooks []specs.Hook) {
		for _, hook := range hooks {
			out[name] = append(out[name], configs.NewCommandHook(&configs.Command{
				Path:    hook.Path,
				Args:    hook.Args,
				Env:     hook.Env,
				Timeout: timeoutSeconds(hook.Timeout),
			}))
		}
	}
	add(configs.Prestart, h.Prestart)
	add(configs.CreateRuntime, h.CreateRuntime)
	add(configs.CreateContainer, h.CreateContainer)
	add(configs.StartContainer, h.StartContainer)
	add(configs.Poststart, h.Poststart)
	add(configs.Poststop, h.Poststop)
	return out
}

// mountOptionFlags maps OCI mount option strings onto the syscall bitmask,
// per the bundle loader's contract in spec.md §6.
var mountOptionFlags = map[string]int{
	"ro":          configs.MsRdonly,
	"rw":          0,
	"nosuid":      configs.MsNosuid,
	"nodev":       configs.MsNodev,
	"noexec":      configs.MsNoexec,
	"bind":        configs.MsBind,
	"rbind":       configs.MsBind | configs.MsRec,
	"remount":     configs.MsRemount,
	"nosymfollow": configs.MsNosymfollow,
	"strictatime": configs.MsStrictatime,
}

var propagationFlags = map[string]int{
	"private":  configs.MsPrivate,
	"rprivate": configs.MsPrivate | configs.MsRec,
	"shared":   configs.MsShared,
	"rshared":  configs.MsShared | configs.MsRec,
	"slave":    configs.MsSlave,
	"rslave":   configs.MsSlave | configs.MsRec,
	"unbindable":  configs.MsUnbindable,
	"runbindable": configs.MsUnbindable | configs.MsRec,
}

func parseMountOptions(options []string) (flags int, data string, propagation int) {
	var extra []string
	for _, opt := range options {
		if f, ok := mountOptionFlags[opt]; ok {
			flags |= f
			continue
		}
		if p, ok := propagationFlags[opt]; ok {
			propagation |= p
			continue
		}
		extra = append(extra, opt)
	}
	return flags, strings.Join(extra, ","), propagation
}

func timeoutSeconds(seconds *int) *time.Duration {
	if seconds == nil {
		return nil
	}
	d := time.Duration(*seconds) * time.Second
	return &d
}
