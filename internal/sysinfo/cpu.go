// Package sysinfo detects the host's logical CPU count for the default
// -j/--jobs value, grounded on the teacher repo's use of gopsutil for host
// introspection (see cmd/root.go and the worktree/model-selection call
// sites that probe host resources). gopsutil's cpu.Counts hits /proc or the
// platform equivalent; runtime.NumCPU is the fallback when that fails,
// since NumCPU alone cannot be shared-core-aware on every platform gopsutil
// supports.
package sysinfo

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
)

// LogicalCPUCount returns the number of logical CPUs visible to the process,
// used as the default for -j/--jobs when the flag is unset.
func LogicalCPUCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}
