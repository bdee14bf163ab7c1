// Package safety is a direct adaptation of the teacher's
// utils/processor.ToolExecutor allow/denylist gate, generalized from
// gating a single workflow "tool:" command to gating every Invocation the
// scheduler is about to spawn. It is additive to spec.md (see SPEC_FULL.md's
// DOMAIN STACK): with an empty configured denylist and no configured
// allowlist it permits everything, so the six end-to-end scenarios in
// spec.md §8 behave identically to a build without this package.
package safety

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Gate checks a resolved program name against an optional allowlist and
// denylist. The zero value permits everything.
type Gate struct {
	allowlist map[string]bool
	denylist  map[string]bool
}

// NewGate builds a Gate. An empty allowlist means "no allowlist
// restriction"; a non-empty one means only those commands may run.
// Denylist entries always take precedence over the allowlist.
func NewGate(allowlist, denylist []string) *Gate {
	g := &Gate{
		allowlist: make(map[string]bool, len(allowlist)),
		denylist:  make(map[string]bool, len(denylist)),
	}
	for _, c := range allowlist {
		g.allowlist[c] = true
	}
	for _, c := range denylist {
		g.denylist[c] = true
	}
	return g
}

// Allowed reports whether argv's program may be spawned, and if not, why.
func (g *Gate) Allowed(argv []string) (bool, string) {
	if g == nil || len(argv) == 0 {
		return true, ""
	}
	base := baseCommand(argv[0])

	if g.denylist[base] {
		return false, fmt.Sprintf("command %q is in the denylist and cannot be executed", base)
	}
	if len(g.allowlist) > 0 && !g.allowlist[base] {
		return false, fmt.Sprintf("command %q is not in the allowlist", base)
	}
	return true, ""
}

func baseCommand(program string) string {
	program = strings.TrimSpace(program)
	if strings.Contains(program, "/") || strings.Contains(program, `\`) {
		return filepath.Base(program)
	}
	return program
}

// DefaultDenylist mirrors the teacher's DefaultDenylist: commands dangerous
// enough that no command stream should run them unattended. Unlike the
// teacher, gorallel does not apply this list anywhere: the gate's denylist
// is empty unless --denylist or the config file's denylist names commands.
var DefaultDenylist = []string{
	"rm", "rmdir", "mv", "dd", "shred", "mkfs",
	"sudo", "su", "doas", "pkexec",
	"chmod", "chown", "chgrp",
	"mkfs.ext4", "mkfs.xfs",
	"systemctl", "reboot", "shutdown", "halt", "poweroff",
}
