package launch

import (
	"github.com/opencontainers/runtime-spec/specs-go"

	"github.com/ocibox/runtime/libcontainer/configs"
	"github.com/ocibox/runtime/libcontainer/errs"
)

// NewState builds the OCI state payload every hook receives on stdin as
// JSON, per the OCI runtime spec's hook contract.
func NewState(id, bundle string, pid int, status specs.ContainerState) *specs.State {
	return &specs.State{
		Version: specs.Version,
		ID:      id,
		Status:  status,
		Pid:     pid,
		Bundle:  bundle,
	}
}

// RunHooks executes every hook registered under name against state,
// fatal unless every one exits successfully. poststop is the only phase
// callers are expected to treat as non-fatal; that tolerance lives in the
// container supervisor, not here, so this function's contract stays
// uniform across phases.
func RunHooks(hooks configs.Hooks, name configs.HookName, state *specs.State) error {
	if err := hooks.Run(name, state); err != nil {
		return errs.Hook(string(name), err)
	}
	return nil
}
