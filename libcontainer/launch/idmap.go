package launch

import (
	"os/exec"
	"strconv"

	"github.com/ocibox/runtime/libcontainer/configs"
	"github.com/ocibox/runtime/libcontainer/errs"
)

// ConfigureUIDMapping shells out to newuidmap for pid. An empty mapping
// list is a no-op; an abnormal exit of the helper is fatal.
func ConfigureUIDMapping(pid int, mappings []configs.IDMap) error {
	return runIDMapHelper("newuidmap", pid, mappings)
}

// ConfigureGIDMapping shells out to newgidmap for pid. An empty mapping
// list is a no-op; an abnormal exit of the helper is fatal.
func ConfigureGIDMapping(pid int, mappings []configs.IDMap) error {
	return runIDMapHelper("newgidmap", pid, mappings)
}

func runIDMapHelper(name string, pid int, mappings []configs.IDMap) error {
	if len(mappings) == 0 {
		return nil
	}

	args := make([]string, 0, 2+3*len(mappings))
	args = append(args, strconv.Itoa(pid))
	for _, m := range mappings {
		args = append(args,
			strconv.FormatInt(m.HostID, 10),
			strconv.FormatInt(m.ContainerID, 10),
			strconv.FormatInt(m.Size, 10),
		)
	}

	// exec.Cmd.Run already retries wait4(2) on EINTR internally, so no
	// extra retry loop is needed here, unlike the raw waitpid loop this is
	// adapted from.
	cmd := exec.Command(name, args...)
	if err := cmd.Run(); err != nil {
		return errs.Helper(name, err)
	}
	return nil
}
