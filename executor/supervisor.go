package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/caffeineduck/wasmplay/hostfunc"
)

// Run calls the guest's _start under the run deadline and returns the
// captured output. Output written before a timeout or trap is kept. The
// instance is closed when Run returns; a second call reports
// ErrInstanceUsed.
func (i *Instance) Run(ctx context.Context) Result {
	if !i.used.CompareAndSwap(false, true) {
		return Result{RunID: i.runID, Termination: Aborted, Error: ErrInstanceUsed}
	}
	defer i.close(context.WithoutCancel(ctx))

	runCtx, cancel := i.runContext(ctx)
	defer cancel()

	start := time.Now()
	errCh := make(chan error, 1)
	go func() {
		_, err := i.entry.Call(runCtx)
		errCh <- err
	}()

	var err error
	abandoned := false
	select {
	case err = <-errCh:
	case <-runCtx.Done():
		// The runtime closes the module once it notices the context; give
		// the guest a bounded window to unwind before giving up on it.
		grace := time.NewTimer(i.exec.cfg.reclaimGrace)
		select {
		case err = <-errCh:
		case <-grace.C:
			abandoned = true
			err = runCtx.Err()
		}
		grace.Stop()
	}

	result := i.classify(ctx, runCtx, err, start)
	result.RunID = i.runID

	stdout, stderr, ferr := i.output.Finalize()
	result.Stdout = stdout
	result.Stderr = stderr
	result.Truncated = i.output.Truncated()
	if ferr != nil && result.Error == nil {
		result.Error = fmt.Errorf("finalize output: %w", ferr)
	}
	result.Duration = time.Since(i.loadedAt)

	i.log(result, abandoned)
	i.exec.observe(result)
	return result
}

func (i *Instance) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.cfg.timeout > 0 {
		return context.WithTimeout(ctx, i.cfg.timeout)
	}
	return context.WithCancel(ctx)
}

// classify maps the entry point's return into a Result. The parent context
// decides between Canceled and TimedOut when the run was interrupted.
func (i *Instance) classify(parent, runCtx context.Context, err error, start time.Time) Result {
	if err == nil {
		return Result{Termination: Completed, FellThrough: true}
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case sys.ExitCodeDeadlineExceeded, sys.ExitCodeContextCanceled:
			if runCtx.Err() != nil {
				return i.interrupted(parent, start)
			}
		}
		return Result{Termination: Completed, ExitCode: exitErr.ExitCode()}
	}

	var fault *hostfunc.MemoryFault
	if errors.As(err, &fault) {
		return Result{Termination: Aborted, Error: loadError("fd_write", "out of bounds", err)}
	}

	if runCtx.Err() != nil {
		return i.interrupted(parent, start)
	}
	return Result{
		Termination: Faulted,
		Error:       &Error{Kind: KindFaulted, Op: "run", Detail: "guest trapped", Cause: err},
	}
}

// interrupted reports which limit stopped the guest. A deadline on the
// caller's context is named as such, since the run timeout did not fire.
func (i *Instance) interrupted(parent context.Context, start time.Time) Result {
	err := parent.Err()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return Result{
			Termination: Canceled,
			Error:       &Error{Kind: KindCanceled, Op: "run", Detail: "execution canceled", Cause: err},
		}
	}
	if err != nil {
		return Result{
			Termination: TimedOut,
			Error: &Error{
				Kind:   KindTimedOut,
				Op:     "run",
				Detail: fmt.Sprintf("caller deadline exceeded after %v", time.Since(start).Round(time.Millisecond)),
				Cause:  context.DeadlineExceeded,
			},
		}
	}
	return Result{
		Termination: TimedOut,
		Error: &Error{
			Kind:   KindTimedOut,
			Op:     "run",
			Detail: fmt.Sprintf("execution timed out after %v", i.cfg.timeout),
			Cause:  context.DeadlineExceeded,
		},
	}
}

func (i *Instance) log(r Result, abandoned bool) {
	fields := []zap.Field{
		zap.String("run_id", r.RunID),
		zap.Stringer("termination", r.Termination),
		zap.Uint32("exit_code", r.ExitCode),
		zap.Duration("duration", r.Duration),
		zap.Int("stdout_bytes", len(r.Stdout)),
		zap.Int("stderr_bytes", len(r.Stderr)),
	}
	if r.Error != nil {
		fields = append(fields, zap.Error(r.Error))
	}
	if abandoned {
		fields = append(fields, zap.Bool("abandoned", true))
	}

	switch r.Termination {
	case Faulted, TimedOut, Aborted:
		i.exec.logger.Warn("run finished", fields...)
	default:
		i.exec.logger.Debug("run finished", fields...)
	}
}
