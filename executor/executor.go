package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/caffeineduck/wasmplay/hostfunc"
)

// DefaultTimeout is the wall-clock budget for a run when none is given.
const DefaultTimeout = 10 * time.Second

// Termination says how a run ended.
type Termination int

const (
	// Aborted means the run never started or was stopped by the harness,
	// for example on a load failure or an out-of-bounds output buffer.
	Aborted Termination = iota
	// Completed means _start returned or the guest called proc_exit.
	Completed
	// Faulted means the guest trapped.
	Faulted
	// TimedOut means the run exceeded its deadline.
	TimedOut
	// Canceled means the caller's context was canceled.
	Canceled
)

func (t Termination) String() string {
	switch t {
	case Completed:
		return "completed"
	case Faulted:
		return "faulted"
	case TimedOut:
		return "timed_out"
	case Canceled:
		return "canceled"
	default:
		return "aborted"
	}
}

// Result holds the output and metadata from a run.
type Result struct {
	RunID       string
	Stdout      string
	Stderr      string
	ExitCode    uint32
	Termination Termination
	// FellThrough is set when _start returned without calling proc_exit.
	FellThrough bool
	Truncated   bool
	Duration    time.Duration
	Error       error
}

// Observer receives every finished Result.
type Observer interface {
	ObserveRun(Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Result)

func (f ObserverFunc) ObserveRun(r Result) { f(r) }

// Executor loads and supervises guest modules. Each run gets a fresh
// wazero runtime so one guest can never observe another; compiled code is
// shared through a compilation cache.
type Executor struct {
	cfg      executorConfig
	cache    wazero.CompilationCache
	registry *hostfunc.Registry
	logger   *zap.Logger

	mu        sync.Mutex
	closed    bool
	instances map[*Instance]struct{}
}

// New creates an Executor with the given capability registry. A nil
// registry uses hostfunc.NewRegistry().
func New(registry *hostfunc.Registry, opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var cache wazero.CompilationCache
	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	} else {
		cache = wazero.NewCompilationCache()
	}

	if registry == nil {
		registry = hostfunc.NewRegistry()
	}
	logger := cfg.logger
	if logger == nil {
		logger = Logger()
	}

	return &Executor{
		cfg:       cfg,
		cache:     cache,
		registry:  registry,
		logger:    logger,
		instances: make(map[*Instance]struct{}),
	}, nil
}

// Run loads binary and runs its entry point under the supervisor. Load
// failures are reported on the Result with Termination Aborted.
func (e *Executor) Run(ctx context.Context, binary []byte, opts ...Option) Result {
	inst, err := e.Load(ctx, binary, opts...)
	if err != nil {
		cfg := e.runConfig(opts)
		result := Result{RunID: cfg.runID, Termination: Aborted, Error: err}
		e.logger.Debug("load failed", zap.String("run_id", cfg.runID), zap.Error(err))
		e.observe(result)
		return result
	}
	return inst.Run(ctx)
}

// Load compiles and links binary without running it. The returned
// Instance must be run or closed.
func (e *Executor) Load(ctx context.Context, binary []byte, opts ...Option) (*Instance, error) {
	cfg := e.runConfig(opts)
	start := time.Now()

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	rt := wazero.NewRuntimeWithConfig(ctx, e.runtimeConfig())
	inst, err := e.load(ctx, rt, binary, cfg)
	if err != nil {
		rt.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	inst.loadedAt = start

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		rt.Close(context.WithoutCancel(ctx))
		return nil, ErrClosed
	}
	e.instances[inst] = struct{}{}
	return inst, nil
}

// runConfig resolves the executor defaults and opts. A run id is
// assigned here so load failures carry one too.
func (e *Executor) runConfig(opts []Option) runConfig {
	cfg := defaultRunConfig()
	for _, opt := range e.cfg.defaults {
		opt(&cfg)
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}
	return cfg
}

func (e *Executor) runtimeConfig() wazero.RuntimeConfig {
	rtConfig := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithCompilationCache(e.cache)
	if e.cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(e.cfg.memoryLimitPages)
	}
	return rtConfig
}

func (e *Executor) observe(r Result) {
	if e.cfg.observer != nil {
		e.cfg.observer.ObserveRun(r)
	}
}

func (e *Executor) release(inst *Instance) {
	e.mu.Lock()
	delete(e.instances, inst)
	e.mu.Unlock()
}

// Close releases all resources held by the Executor, including instances
// that were loaded but never run.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	pending := make([]*Instance, 0, len(e.instances))
	for inst := range e.instances {
		pending = append(pending, inst)
	}
	e.mu.Unlock()

	ctx := context.Background()

	var errs []error
	for _, inst := range pending {
		if err := inst.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.cache.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "wasmplay")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "wasmplay")
	}
	return filepath.Join(os.TempDir(), "wasmplay-cache")
}
