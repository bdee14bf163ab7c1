// Package config defines the immutable, process-wide record of options
// (spec §3/§6). It is built once in cmd/root.go and passed by pointer to
// every component constructor rather than reached for as a singleton, so
// that the producer, scheduler, sink and reporter can each be exercised in
// isolation in tests without a package-level global — the one deliberate
// departure from the teacher's cmd/root.go envConfig package variable, recorded as
// an Open Question resolution in DESIGN.md.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/gorallel/gorallel/internal/fileutil"
	"github.com/gorallel/gorallel/internal/sysinfo"
)

// Discard selects which captured streams the sink should drop.
type Discard struct {
	Stdout bool
	Stderr bool
}

// Config is the frozen record of options described in spec §6.
type Config struct {
	CommandAndInitialArgs []string
	ArgGroups             [][]string // populated when ::: appears

	InputFiles     []string // "-" denotes stdin, order preserved
	Jobs           int
	NullSeparator  bool
	ProgressBar    bool
	Regex          string
	Shell          bool
	ShellPath      string
	TimeoutSeconds float64
	KeepOrder      bool
	ChannelCap     int
	DryRun         bool
	ExitOnError    bool
	NoRunIfEmpty   bool
	AutoNumbered   bool
	AutoNamed      bool
	Discard        Discard

	// Supplemental, off-by-default wiring (see SPEC_FULL.md's DOMAIN STACK).
	Allowlist        []string
	Denylist         []string
	RetrySpawnErrors int

	Verbose bool
}

// fileDefaults mirrors the subset of Config that may be set from
// ~/.gorallel/config.yaml; CLI flags always take precedence (the teacher's
// CLI-over-file precedence, see cmd/process.go's flag/env merging).
type fileDefaults struct {
	Jobs           *int     `yaml:"jobs"`
	ShellPath      *string  `yaml:"shell_path"`
	ChannelCap     *int     `yaml:"channel_capacity"`
	TimeoutSeconds *float64 `yaml:"timeout_seconds"`
	Denylist       []string `yaml:"denylist"`
	Allowlist      []string `yaml:"allowlist"`
}

// DefaultConfigPath returns ~/.gorallel/config.yaml, expanded.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gorallel", "config.yaml"), nil
}

// ApplyFileDefaults loads path (if it exists) and fills in any Config field
// still at its zero value. A missing file is not an error; a malformed one
// is a fatal configuration error per spec §7.
func ApplyFileDefaults(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return nil //nolint:nilerr // no home dir means no file defaults, not fatal
		}
	}
	expanded, err := fileutil.ExpandPath(path)
	if err == nil {
		path = expanded
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var fd fileDefaults
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if cfg.Jobs == 0 && fd.Jobs != nil {
		cfg.Jobs = *fd.Jobs
	}
	if cfg.ShellPath == "" && fd.ShellPath != nil {
		cfg.ShellPath = *fd.ShellPath
	}
	if cfg.ChannelCap == 0 && fd.ChannelCap != nil {
		cfg.ChannelCap = *fd.ChannelCap
	}
	if cfg.TimeoutSeconds == 0 && fd.TimeoutSeconds != nil {
		cfg.TimeoutSeconds = *fd.TimeoutSeconds
	}
	if len(cfg.Denylist) == 0 {
		cfg.Denylist = append(cfg.Denylist, fd.Denylist...)
	}
	if len(cfg.Allowlist) == 0 {
		cfg.Allowlist = append(cfg.Allowlist, fd.Allowlist...)
	}
	return nil
}

// ApplyDefaults fills in values left unset by flags and the config file:
// Jobs defaults to the detected logical CPU count, ChannelCap to 2x that,
// and ShellPath to the platform shell.
func ApplyDefaults(cfg *Config) {
	if cfg.Jobs <= 0 {
		cfg.Jobs = sysinfo.LogicalCPUCount()
	}
	if cfg.ChannelCap <= 0 {
		cfg.ChannelCap = 2 * sysinfo.LogicalCPUCount()
	}
	if cfg.ShellPath == "" {
		cfg.ShellPath = defaultShellPath()
	}
}

func defaultShellPath() string {
	if runtime.GOOS == "windows" {
		return "cmd"
	}
	return "/bin/bash"
}

// Validate rejects configuration combinations spec §7 calls out as fatal
// configuration errors.
func (c *Config) Validate() error {
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be >= 1, got %d", c.Jobs)
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout-seconds must be > 0, got %v", c.TimeoutSeconds)
	}
	if c.ChannelCap < 1 {
		return fmt.Errorf("channel-capacity must be >= 1, got %d", c.ChannelCap)
	}
	if c.AutoNumbered && c.AutoNamed {
		return fmt.Errorf("--auto-interpolate-args and --auto-interpolate-named-args are mutually exclusive")
	}
	if c.Regex != "" && (c.AutoNumbered || c.AutoNamed) {
		return fmt.Errorf("--regex cannot be combined with an auto-interpolate flag")
	}
	return nil
}

// HasArgGroupSeparator reports whether ::: appears in the trailing args,
// which switches the producer into argument-group mode (spec §4.1).
func HasArgGroupSeparator(args []string) bool {
	for _, a := range args {
		if a == ":::" {
			return true
		}
	}
	return false
}

// SplitArgGroups partitions args around every ::: into a command template
// and the argument groups that follow it.
func SplitArgGroups(args []string) (command []string, groups [][]string) {
	var current []string
	first := true
	for _, a := range args {
		if a == ":::" {
			if first {
				command = current
				first = false
			} else {
				groups = append(groups, current)
			}
			current = nil
			continue
		}
		current = append(current, a)
	}
	if first {
		command = current
	} else {
		groups = append(groups, current)
	}
	return command, groups
}
