package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gorallel/gorallel/internal/config"
	"github.com/gorallel/gorallel/internal/input"
	"github.com/gorallel/gorallel/internal/logging"
	"github.com/gorallel/gorallel/internal/model"
	"github.com/gorallel/gorallel/internal/progressui"
	"github.com/gorallel/gorallel/internal/report"
	"github.com/gorallel/gorallel/internal/resolve"
	"github.com/gorallel/gorallel/internal/safety"
	"github.com/gorallel/gorallel/internal/schedule"
	"github.com/gorallel/gorallel/internal/signalctx"
	"github.com/gorallel/gorallel/internal/sink"
)

// version is set at build time via -ldflags.
var version string

var (
	flagDiscard          string
	flagInputFiles       []string
	flagJobs             int
	flagNullSeparator    bool
	flagProgressBar      bool
	flagRegex            string
	flagShell            bool
	flagTimeoutSeconds   float64
	flagKeepOrder        bool
	flagChannelCap       int
	flagShellPath        string
	flagDryRun           bool
	flagExitOnError      bool
	flagNoRunIfEmpty     bool
	flagAutoNumbered     bool
	flagAutoNamed        bool
	flagAllowlist        []string
	flagDenylist         []string
	flagRetrySpawnErrors int
	flagConfigPath       string
	flagVerbose          bool
)

var rootCmd = &cobra.Command{
	Use:   "gorallel [options] [command and args] [::: group ...]",
	Short: "Run a command stream concurrently across inputs or argument groups",
	Long: `gorallel runs one command template against a stream of inputs, or across
the cartesian product of ::: -separated argument groups, with a bounded
number of children running at once.

Examples:
  seq 1 10 | gorallel -j4 -- echo
  gorallel echo {1}-{2} ::: a b ::: 1 2
  gorallel -k --dry-run -i files.txt -r '.*' -- convert {} {}.png`,
	Args:          cobra.ArbitraryArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runRoot,
}

func init() {
	rootCmd.Flags().SetInterspersed(false)

	rootCmd.Flags().StringVarP(&flagDiscard, "discard-output", "d", "", "suppress captured streams: stdout, stderr, or all")
	rootCmd.Flags().StringArrayVarP(&flagInputFiles, "input-file", "i", nil, "read inputs from path (\"-\" = stdin); repeatable, order preserved")
	rootCmd.Flags().IntVarP(&flagJobs, "jobs", "j", 0, "maximum concurrent children (default: CPU count)")
	rootCmd.Flags().BoolVarP(&flagNullSeparator, "null-separator", "0", false, "NUL-delimit input records")
	rootCmd.Flags().BoolVarP(&flagProgressBar, "progress-bar", "p", false, "show a live progress UI on stderr")
	rootCmd.Flags().StringVarP(&flagRegex, "regex", "r", "", "explicit regex template")
	rootCmd.Flags().BoolVarP(&flagShell, "shell", "s", false, "shell mode: run each command as shell-path -c <joined>")
	rootCmd.Flags().Float64VarP(&flagTimeoutSeconds, "timeout-seconds", "t", 0, "per-command timeout in seconds, > 0")
	rootCmd.Flags().BoolVarP(&flagKeepOrder, "keep-order", "k", false, "deliver output in ordinal order")
	rootCmd.Flags().IntVar(&flagChannelCap, "channel-capacity", 0, "producer-scheduler channel depth (default: 2x CPU count)")
	rootCmd.Flags().StringVar(&flagShellPath, "shell-path", "", "shell binary for --shell mode")
	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "print resolved invocations instead of executing")
	rootCmd.Flags().BoolVar(&flagExitOnError, "exit-on-error", false, "cancel remaining work on the first failure")
	rootCmd.Flags().BoolVar(&flagNoRunIfEmpty, "no-run-if-empty", false, "skip input records that trim to empty")
	rootCmd.Flags().BoolVar(&flagAutoNumbered, "auto-interpolate-args", false, "implicit numbered template in argument-group mode")
	rootCmd.Flags().BoolVar(&flagAutoNamed, "auto-interpolate-named-args", false, "implicit named template in argument-group mode")

	rootCmd.Flags().StringArrayVar(&flagAllowlist, "allowlist", nil, "only permit these base commands to run")
	rootCmd.Flags().StringArrayVar(&flagDenylist, "denylist", nil, "never permit these base commands to run")
	rootCmd.Flags().IntVar(&flagRetrySpawnErrors, "retry-spawn-errors", 0, "retry a spawn error up to N times with backoff before counting it")
	rootCmd.Flags().StringVar(&flagConfigPath, "config", "", "config file path (default ~/.gorallel/config.yaml)")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose (debug) logging")

	rootCmd.AddCommand(versionCmd)
}

func runRoot(cmd *cobra.Command, args []string) error {
	log := logging.New(flagVerbose)
	defer log.Close()

	cfg, err := buildConfig(args)
	if err != nil {
		logging.Fatal("%v", err)
	}
	if err := config.ApplyFileDefaults(cfg, flagConfigPath); err != nil {
		logging.Fatal("%v", err)
	}
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		logging.Fatal("%v", err)
	}

	discard, err := parseDiscard(flagDiscard)
	if err != nil {
		logging.Fatal("%v", err)
	}
	cfg.Discard = discard

	tmpl, groups, err := input.PrepareTemplate(cfg)
	if err != nil {
		logging.Fatal("%v", err)
	}

	sk := sink.New(os.Stdout, os.Stderr, cfg.KeepOrder, sink.Discard(cfg.Discard))
	counters := &report.Counters{}
	reporter := report.New(sk)

	var gate *safety.Gate
	if len(cfg.Allowlist) > 0 || len(cfg.Denylist) > 0 {
		gate = safety.NewGate(cfg.Allowlist, cfg.Denylist)
	}
	cache := resolve.NewCache(256)

	ctx, stop := signalctx.WithSignals(context.Background())
	defer stop()

	total := int64(-1)
	if len(groups) > 0 {
		total = 1
		for _, g := range groups {
			total *= int64(len(g))
		}
	}
	showBar := cfg.ProgressBar && term.IsTerminal(int(os.Stderr.Fd()))
	bar := progressui.New(showBar, counters, total)
	defer bar.Stop()

	producer := input.New(cfg, tmpl, groups, log, sk)
	ch := make(chan model.Invocation, cfg.ChannelCap)

	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	producerErrCh := make(chan error, 1)
	go func() {
		perr := producer.Run(ch)
		if perr != nil {
			cancelRun()
		}
		producerErrCh <- perr
	}()

	sched := schedule.New(cfg, sk, counters, gate, cache, log)
	sched.Run(ctx, ch)

	perr := <-producerErrCh
	if perr != nil {
		log.Err("%v", perr)
	}

	code := reporter.Finish(counters)
	if perr != nil {
		code = 1
	}
	os.Exit(code)
	return nil
}

// buildConfig translates CLI flags and trailing positional args into a
// Config. The command template and any ::: argument groups are parsed out
// of args per spec §6's "<bin> [options] [command and args] [::: group...]"
// grammar.
func buildConfig(args []string) (*config.Config, error) {
	command, groups := config.SplitArgGroups(args)

	cfg := &config.Config{
		CommandAndInitialArgs: command,
		ArgGroups:             groups,
		InputFiles:            flagInputFiles,
		Jobs:                  flagJobs,
		NullSeparator:         flagNullSeparator,
		ProgressBar:           flagProgressBar,
		Regex:                 flagRegex,
		Shell:                 flagShell,
		ShellPath:             flagShellPath,
		TimeoutSeconds:        flagTimeoutSeconds,
		KeepOrder:             flagKeepOrder,
		ChannelCap:            flagChannelCap,
		DryRun:                flagDryRun,
		ExitOnError:           flagExitOnError,
		NoRunIfEmpty:          flagNoRunIfEmpty,
		AutoNumbered:          flagAutoNumbered,
		AutoNamed:             flagAutoNamed,
		Allowlist:             flagAllowlist,
		Denylist:              flagDenylist,
		RetrySpawnErrors:      flagRetrySpawnErrors,
		Verbose:               flagVerbose,
	}
	if len(command) == 0 && len(groups) == 0 {
		return nil, fmt.Errorf("no command given; usage: gorallel [options] <command and args> [::: group ...]")
	}
	return cfg, nil
}

func parseDiscard(spec string) (config.Discard, error) {
	var d config.Discard
	if spec == "" {
		return d, nil
	}
	for _, part := range strings.Split(spec, ",") {
		switch strings.TrimSpace(part) {
		case "stdout":
			d.Stdout = true
		case "stderr":
			d.Stderr = true
		case "all":
			d.Stdout, d.Stderr = true, true
		case "":
		default:
			return d, fmt.Errorf("invalid --discard-output value %q: want stdout, stderr, or all", part)
		}
	}
	return d, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("gorallel version: " + getVersion())
	},
}

func getVersion() string {
	if version != "" {
		return version
	}
	if v := os.Getenv("GORALLEL_VERSION"); v != "" {
		return v
	}
	return "dev"
}

// Execute runs the root command, translating errors into the process exit
// status spec §7 reserves for configuration/usage failures.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
