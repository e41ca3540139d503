package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aperture-cli/aperture/aperr"
	"github.com/aperture-cli/aperture/batch"
	"github.com/aperture-cli/aperture/config"
	"github.com/aperture-cli/aperture/engine"
	"github.com/aperture-cli/aperture/output"
	"github.com/aperture-cli/aperture/respcache"
	"github.com/aperture-cli/aperture/spec"
)

func (a *app) apiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api <api> [args...]",
		Short: "Execute operations of a registered API",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.opts.batchFile != "" {
				return a.runBatch(cmd.Context(), args[0])
			}
			return a.runAPICommand(cmd.Context(), args[0], args[1:])
		},
	}
	// Stop flag parsing at the API name so operation flags reach the
	// generated tree untouched.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// runAPICommand builds the generated tree for one API and executes argv
// against it.
func (a *app) runAPICommand(ctx context.Context, apiName string, argv []string) error {
	cached, err := a.loadSpec(apiName)
	if err != nil {
		return err
	}

	gen := &engine.Generator{Positional: a.opts.positional}
	tree := gen.Build(cached, func(cmd *cobra.Command, command *spec.CachedCommand, args []string) error {
		result, err := a.invoke(ctx, cached, command, cmd.Flags(), args, nil)
		if err != nil {
			return err
		}
		return a.render(result)
	})
	tree.SetArgs(argv)
	tree.SetOut(a.out)
	tree.SetErr(a.errOut)
	return tree.ExecuteContext(ctx)
}

func (a *app) render(result *engine.CallResult) error {
	if a.opts.quiet && !a.opts.dryRun {
		return nil
	}
	return a.renderTo(a.out, result)
}

func (a *app) renderTo(w io.Writer, result *engine.CallResult) error {
	if result.DryRun {
		_, err := fmt.Fprintln(w, result.Body)
		return err
	}
	if !output.ValidFormat(a.opts.format) {
		return aperr.New(aperr.InvalidArgument, "unknown output format %q", a.opts.format)
	}
	return output.Render(w, result.Body, a.opts.format, a.opts.jq)
}

// callOverrides are per-operation settings from a batch file.
type callOverrides struct {
	headers         map[string]string
	useCache        *bool
	retry           *int
	retryDelayMS    *int64
	retryMaxDelayMS *int64
	forceRetry      *bool
}

// invoke runs the full request pipeline for one resolved command: translate,
// base URL resolution, server variables, auth binding, and execution.
func (a *app) invoke(ctx context.Context, cached *spec.CachedSpec, command *spec.CachedCommand, flags *pflag.FlagSet, args []string, ov *callOverrides) (*engine.CallResult, error) {
	call, extras, err := engine.Translate(cached.Name, command, flags, args, a.opts.positional)
	if err != nil {
		return nil, err
	}
	if ov != nil {
		for name, value := range ov.headers {
			call.SetHeader(name, value)
		}
	}

	resolver := &config.URLResolver{}
	base := resolver.Resolve("", cached.Name, a.cfg, cached)
	base, err = config.SubstituteServerVariables(base, cached.ServerVariables, extras)
	if err != nil {
		return nil, err
	}
	call.BaseURL = base

	overrides := a.cfg.API(cached.Name).Secrets
	binder := &engine.Binder{}
	if err := binder.Bind(call, cached.SecuritySchemes, overrides); err != nil {
		return nil, err
	}

	ec := engine.ExecContext{
		DryRun:          a.opts.dryRun,
		IdempotencyKey:  a.opts.idempotencyKey,
		Cache:           a.cacheFor(ov),
		CacheTTLSeconds: a.opts.cacheTTL,
		Retry:           a.retryPolicy(ov),
		Config:          a.cfg,
		SecretEnvVars:   engine.SecretEnvVars(call.SecuritySchemes, cached.SecuritySchemes, overrides),
	}
	executor := &engine.Executor{Version: a.version}
	return executor.Execute(ctx, call, ec)
}

func (a *app) cacheFor(ov *callOverrides) *respcache.Cache {
	enabled := a.opts.cacheOn
	if ov != nil && ov.useCache != nil {
		enabled = *ov.useCache
	}
	if a.opts.noCache || !enabled {
		return nil
	}
	return respcache.New(respcache.Config{
		Dir:        a.mgr.ResponseCacheDir(),
		TTLSeconds: a.opts.cacheTTL,
	})
}

// retryPolicy folds the global retry flags with per-operation overrides.
// --retry counts retries, so attempts are one more.
func (a *app) retryPolicy(ov *callOverrides) *engine.RetryPolicy {
	retries := a.opts.retry
	delay := a.opts.retryDelay
	maxDelay := a.opts.retryMaxDelay
	force := a.opts.forceRetry
	if ov != nil {
		if ov.retry != nil {
			retries = *ov.retry
		}
		if ov.retryDelayMS != nil {
			delay = time.Duration(*ov.retryDelayMS) * time.Millisecond
		}
		if ov.retryMaxDelayMS != nil {
			maxDelay = time.Duration(*ov.retryMaxDelayMS) * time.Millisecond
		}
		if ov.forceRetry != nil {
			force = *ov.forceRetry
		}
	}
	if retries <= 0 {
		return nil
	}
	return &engine.RetryPolicy{
		MaxAttempts:  retries + 1,
		InitialDelay: delay,
		MaxDelay:     maxDelay,
		ForceRetry:   force,
	}
}

// runBatch executes a batch file against one API.
func (a *app) runBatch(ctx context.Context, apiName string) error {
	file, err := batch.LoadFile(a.opts.batchFile)
	if err != nil {
		return err
	}
	cached, err := a.loadSpec(apiName)
	if err != nil {
		return err
	}

	executor := &batch.Executor{
		// Dependent mode suppresses per-operation rendering so the raw
		// body stays available for capture; independent mode renders each
		// result as it lands.
		Runner: &batchRunner{
			app:       a,
			cached:    cached,
			renderOps: !file.HasDependencies(),
		},
		MaxConcurrency:  a.opts.batchConcurrency,
		RateLimit:       a.opts.batchRateLimit,
		ContinueOnError: a.opts.continueOnError,
	}
	result, execErr := executor.Execute(ctx, file)
	if result != nil {
		summary, err := json.MarshalIndent(result, "", "  ")
		if err == nil {
			fmt.Fprintln(a.out, string(summary))
		}
	}
	return execErr
}

// batchRunner executes one batch operation through the generated tree.
type batchRunner struct {
	app    *app
	cached *spec.CachedSpec

	// renderOps turns on per-operation rendering (independent mode runs
	// operations for their output; dependent mode runs them for capture).
	renderOps bool

	// renderMu serializes concurrent writes from independent-mode
	// goroutines.
	renderMu sync.Mutex
}

func (r *batchRunner) Run(ctx context.Context, op *batch.Operation) (*batch.RunOutcome, error) {
	var outcome *batch.RunOutcome
	ov := &callOverrides{
		headers:         op.Headers,
		useCache:        op.UseCache,
		retry:           op.Retry,
		retryDelayMS:    op.RetryDelay,
		retryMaxDelayMS: op.RetryMaxDelay,
		forceRetry:      op.ForceRetry,
	}

	gen := &engine.Generator{Positional: r.app.opts.positional}
	tree := gen.Build(r.cached, func(cmd *cobra.Command, command *spec.CachedCommand, args []string) error {
		result, err := r.app.invoke(ctx, r.cached, command, cmd.Flags(), args, ov)
		if err != nil {
			return err
		}
		outcome = &batch.RunOutcome{
			Status:    result.Status,
			Body:      result.Body,
			FromCache: result.FromCache,
		}
		if !op.SuppressOutput && !r.app.opts.quiet && (r.renderOps || r.app.opts.dryRun) {
			r.renderMu.Lock()
			defer r.renderMu.Unlock()
			return r.app.renderTo(r.app.out, result)
		}
		return nil
	})
	tree.SetArgs(op.Args)
	tree.SetOut(io.Discard)
	tree.SetErr(io.Discard)
	if err := tree.ExecuteContext(ctx); err != nil {
		return nil, err
	}
	if outcome == nil {
		return nil, aperr.New(aperr.InvalidArgument,
			"batch operation %v did not resolve to a command", op.Args)
	}
	return outcome, nil
}
