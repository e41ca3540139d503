package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aperture-cli/aperture/config"
	"github.com/aperture-cli/aperture/manifest"
	"github.com/aperture-cli/aperture/spec"
)

// globalOptions mirror the persistent flags.
type globalOptions struct {
	describeJSON bool
	jsonErrors   bool
	quiet        bool
	verbosity    int

	dryRun         bool
	idempotencyKey string

	format string
	jq     string

	batchFile        string
	batchConcurrency int
	batchRateLimit   float64
	continueOnError  bool

	cacheOn  bool
	noCache  bool
	cacheTTL int64

	positional bool

	retry         int
	retryDelay    time.Duration
	retryMaxDelay time.Duration
	forceRetry    bool
}

type app struct {
	version string
	opts    globalOptions

	mgr *config.Manager
	cfg *config.GlobalConfig

	out    io.Writer
	errOut io.Writer
}

func newApp(version string, out, errOut io.Writer) *app {
	return &app{version: version, out: out, errOut: errOut}
}

// jsonErrors reports whether errors should render as structured JSON,
// either from the flag or the agent_defaults setting.
func (a *app) jsonErrors() bool {
	if a.opts.jsonErrors {
		return true
	}
	return a.cfg != nil && a.cfg.AgentDefaults.JSONErrors
}

// Execute runs one CLI invocation.
func (a *app) Execute(ctx context.Context, argv []string) error {
	root := a.rootCmd()
	root.SetArgs(argv)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "aperture",
		Short: "Dynamic CLI for OpenAPI-described services",
		Long: "Aperture generates commands at runtime from registered OpenAPI 3.x\n" +
			"specifications and executes API operations directly from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.setupLogging()
			return a.initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.opts.describeJSON {
				return a.printManifest()
			}
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVar(&a.opts.describeJSON, "describe-json", false, "Output capability manifest as JSON")
	pf.BoolVar(&a.opts.jsonErrors, "json-errors", false, "Output errors in JSON format")
	pf.BoolVarP(&a.opts.quiet, "quiet", "q", false, "Suppress non-essential output")
	pf.CountVarP(&a.opts.verbosity, "verbose", "v", "Increase log verbosity (-v, -vv)")
	pf.BoolVar(&a.opts.dryRun, "dry-run", false, "Show request details without executing")
	pf.StringVar(&a.opts.idempotencyKey, "idempotency-key", "", "Set the Idempotency-Key header")
	pf.StringVar(&a.opts.format, "format", "json", "Output format: json, yaml, or table")
	pf.StringVar(&a.opts.jq, "jq", "", "Apply a jq filter to the response before rendering")
	pf.StringVar(&a.opts.batchFile, "batch-file", "", "Execute operations from a batch file")
	pf.IntVar(&a.opts.batchConcurrency, "batch-concurrency", 5, "Concurrent operations in independent batches")
	pf.Float64Var(&a.opts.batchRateLimit, "batch-rate-limit", 0, "Max batch requests per second (0 disables)")
	pf.BoolVar(&a.opts.continueOnError, "continue-on-error", false, "Keep an independent batch going after failures")
	pf.BoolVar(&a.opts.cacheOn, "cache", false, "Enable response caching for this invocation")
	pf.BoolVar(&a.opts.noCache, "no-cache", false, "Disable response caching for this invocation")
	pf.Int64Var(&a.opts.cacheTTL, "cache-ttl", 0, "Response cache TTL in seconds")
	pf.BoolVar(&a.opts.positional, "positional-args", false, "Accept path parameters as positional arguments")
	pf.IntVar(&a.opts.retry, "retry", 0, "Retry failed requests up to N times")
	pf.DurationVar(&a.opts.retryDelay, "retry-delay", 500*time.Millisecond, "Initial retry backoff")
	pf.DurationVar(&a.opts.retryMaxDelay, "retry-max-delay", 10*time.Second, "Maximum retry backoff")
	pf.BoolVar(&a.opts.forceRetry, "force-retry", false, "Retry even non-idempotent requests")
	root.MarkFlagsMutuallyExclusive("cache", "no-cache")

	root.AddCommand(
		a.configCmd(),
		a.apiCmd(),
		a.execCmd(),
		a.listCommandsCmd(),
		a.searchCmd(),
		a.docsCmd(),
		a.overviewCmd(),
	)
	return root
}

// setupLogging maps --quiet/-v/-vv onto slog levels. Warnings show by
// default.
func (a *app) setupLogging() {
	level := slog.LevelWarn
	switch {
	case a.opts.quiet:
		level = slog.LevelError
	case a.opts.verbosity == 1:
		level = slog.LevelInfo
	case a.opts.verbosity >= 2:
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func (a *app) initConfig() error {
	if a.mgr != nil {
		return nil
	}
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	mgr, err := config.NewManager(dir)
	if err != nil {
		return err
	}
	a.mgr = mgr
	cfg, err := mgr.LoadGlobal()
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// printManifest emits the capability manifest for every registered API.
func (a *app) printManifest() error {
	names, err := a.mgr.ListAPIs()
	if err != nil {
		return err
	}
	specs := make(map[string]*spec.CachedSpec, len(names))
	for _, name := range names {
		cached, err := a.loadSpec(name)
		if err != nil {
			return err
		}
		specs[name] = cached
	}
	doc, err := manifest.Build(specs).JSON()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(doc))
	return nil
}
