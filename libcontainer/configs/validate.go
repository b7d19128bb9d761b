package configs

import "github.com/ocibox/runtime/libcontainer/errs"

// Validate checks the invariants spec.md §3 requires hold before any side
// effect: namespace-type uniqueness (invariant 1) and a non-empty, usable
// process payload when one is set.
func (c *Config) Validate() error {
	if _, err := c.Namespaces.CloneFlags(); err != nil {
		return err
	}
	if c.Process != nil {
		if len(c.Process.Args) == 0 {
			return errs.Configuration("process.args must be non-empty")
		}
		if c.Process.Cwd == "" {
			return errs.Configuration("process.cwd must be set")
		}
	}
	return nil
}
