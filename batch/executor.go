package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SkippedMessage is recorded for operations never attempted after an atomic
// batch halts.
const SkippedMessage = "Skipped due to prior failure"

// DefaultMaxConcurrency bounds independent-mode parallelism.
const DefaultMaxConcurrency = 5

// RunOutcome is what an OperationRunner returns for one successful call.
type RunOutcome struct {
	Status    int
	Body      string
	FromCache bool
}

// OperationRunner executes one batch operation whose args are already
// interpolated. The CLI wires the real command pipeline here; tests stub it.
type OperationRunner interface {
	Run(ctx context.Context, op *Operation) (*RunOutcome, error)
}

// Executor drives a batch file through a runner.
type Executor struct {
	Runner OperationRunner

	// MaxConcurrency bounds the independent path. Zero means
	// DefaultMaxConcurrency.
	MaxConcurrency int

	// RateLimit caps independent-path dispatches per second. Zero disables
	// the limiter.
	RateLimit float64

	// ContinueOnError keeps the independent path going after failures.
	ContinueOnError bool
}

// Execute runs the batch. Dependent mode is chosen when any operation
// declares capture, capture_append, or depends_on; otherwise all operations
// run concurrently. The returned Result is always populated; the error is
// non-nil when the batch as a whole failed.
func (e *Executor) Execute(ctx context.Context, file *File) (*Result, error) {
	file.ApplyDefaults()
	start := time.Now()

	var (
		result *Result
		err    error
	)
	if file.HasDependencies() {
		result, err = e.runDependent(ctx, file)
	} else {
		result, err = e.runIndependent(ctx, file)
	}
	if result != nil {
		result.Elapsed = time.Since(start)
		result.tally()
	}
	return result, err
}

// runDependent executes sequentially in topological order with atomic
// fail-fast semantics.
func (e *Executor) runDependent(ctx context.Context, file *File) (*Result, error) {
	ops := file.Operations
	order, err := ResolveExecutionOrder(ops)
	if err != nil {
		return nil, err
	}

	result := &Result{Results: make([]OperationResult, len(ops))}
	for i := range ops {
		result.Results[i] = OperationResult{Index: i, ID: ops[i].ID}
	}

	store := NewVariableStore()
	var firstErr error
	for pos, idx := range order {
		op := &ops[idx]
		slot := &result.Results[idx]

		opStart := time.Now()
		runErr := e.runOne(ctx, op, store, slot)
		slot.Elapsed = time.Since(opStart)
		if runErr == nil {
			slot.Success = true
			continue
		}

		slot.Error = runErr.Error()
		firstErr = runErr
		// Atomic: everything not yet run is recorded as skipped.
		for _, rest := range order[pos+1:] {
			result.Results[rest].Error = SkippedMessage
		}
		break
	}
	return result, firstErr
}

// runOne interpolates, dispatches, and captures for a single dependent-mode
// operation.
func (e *Executor) runOne(ctx context.Context, op *Operation, store *VariableStore, slot *OperationResult) error {
	interpolated := *op
	interpolated.Args = make([]string, len(op.Args))
	for i, arg := range op.Args {
		value, err := store.Interpolate(arg, opLabel(op, slot.Index))
		if err != nil {
			return err
		}
		interpolated.Args[i] = value
	}

	outcome, err := e.Runner.Run(ctx, &interpolated)
	if err != nil {
		return err
	}
	slot.Status = outcome.Status
	slot.Body = outcome.Body
	slot.FromCache = outcome.FromCache

	// A capture failure fails the operation even though the call succeeded.
	captured, err := ExtractCaptures(opLabel(op, slot.Index), outcome.Body, op.Capture)
	if err != nil {
		return err
	}
	for name, value := range captured {
		store.Set(name, value)
	}
	appended, err := ExtractCaptures(opLabel(op, slot.Index), outcome.Body, op.CaptureAppend)
	if err != nil {
		return err
	}
	for name, value := range appended {
		store.Append(name, value)
	}
	return nil
}

// runIndependent executes all operations concurrently under a semaphore and
// an optional token-bucket rate limiter. Results are slotted by input index.
func (e *Executor) runIndependent(ctx context.Context, file *File) (*Result, error) {
	ops := file.Operations
	result := &Result{Results: make([]OperationResult, len(ops))}

	maxConcurrency := e.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	sem := make(chan struct{}, maxConcurrency)

	var limiter *rate.Limiter
	if e.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(e.RateLimit), 1)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make([]error, len(ops))
	var wg sync.WaitGroup
	for i := range ops {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			op := &ops[idx]
			slot := &result.Results[idx]
			slot.Index = idx
			slot.ID = op.ID

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				slot.Error = SkippedMessage
				return
			}
			if limiter != nil {
				if err := limiter.Wait(runCtx); err != nil {
					slot.Error = SkippedMessage
					return
				}
			}

			opStart := time.Now()
			outcome, err := e.Runner.Run(runCtx, op)
			slot.Elapsed = time.Since(opStart)
			if err != nil {
				slot.Error = err.Error()
				errs[idx] = err
				slog.Debug("batch operation failed",
					slog.String("operation", opLabel(op, idx)),
					slog.Any("error", err))
				if !e.ContinueOnError {
					cancel()
				}
				return
			}
			slot.Success = true
			slot.Status = outcome.Status
			slot.Body = outcome.Body
			slot.FromCache = outcome.FromCache
		}(i)
	}
	wg.Wait()

	if !e.ContinueOnError {
		for _, err := range errs {
			if err != nil {
				return result, err
			}
		}
	}
	return result, nil
}
