package executor

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/caffeineduck/wasmplay/capture"
)

// Option configures a single run.
type Option func(*runConfig)

type runConfig struct {
	timeout     time.Duration
	decode      capture.DecodeMode
	outputLimit int64
	random      io.Reader
	runID       string
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout: DefaultTimeout,
		decode:  capture.DecodeStreaming,
	}
}

// WithTimeout sets the wall-clock budget for the entry point. Zero or a
// negative value disables the deadline; the caller's context still applies.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithDecodeMode selects how guest output bytes are decoded.
func WithDecodeMode(m capture.DecodeMode) Option {
	return func(c *runConfig) {
		c.decode = m
	}
}

// WithOutputLimit caps the bytes kept per stream. Zero means unlimited.
func WithOutputLimit(n int64) Option {
	return func(c *runConfig) {
		c.outputLimit = n
	}
}

// WithRandomSource replaces crypto/rand for random_get.
func WithRandomSource(r io.Reader) Option {
	return func(c *runConfig) {
		c.random = r
	}
}

// WithRunID sets the id reported on the Result instead of a fresh UUID.
func WithRunID(id string) Option {
	return func(c *runConfig) {
		c.runID = id
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = wazero default (4GB)
	diskCache        bool
	cacheDir         string
	reclaimGrace     time.Duration
	logger           *zap.Logger
	observer         Observer
	defaults         []Option
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		memoryLimitPages: MemoryLimit256MB,
		reclaimGrace:     time.Second,
	}
}

// WithMemoryLimit sets the maximum memory available to a guest.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(16) = 1MB max
//   - WithMemoryLimit(256) = 16MB max
//   - WithMemoryLimit(4096) = 256MB max
//
// Default is 256MB. 0 removes the limit (up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// WithDiskCache enables persistent compilation caching to disk.
// Repeated runs of the same guest skip compilation across processes.
// Default cache location is ~/.cache/wasmplay or $XDG_CACHE_HOME/wasmplay.
func WithDiskCache() ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
	}
}

// WithCacheDir sets a custom directory for the compilation cache.
// Implies WithDiskCache.
func WithCacheDir(dir string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		c.cacheDir = dir
	}
}

// WithReclaimGrace bounds how long a run waits for an interrupted guest to
// unwind after its deadline before abandoning it.
func WithReclaimGrace(d time.Duration) ExecutorOption {
	return func(c *executorConfig) {
		c.reclaimGrace = d
	}
}

// WithLogger sets the logger for run events. Defaults to Logger().
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(c *executorConfig) {
		c.logger = l
	}
}

// WithObserver registers o to receive every finished Result.
func WithObserver(o Observer) ExecutorOption {
	return func(c *executorConfig) {
		c.observer = o
	}
}

// WithDefaults sets run options applied before the per-run options.
func WithDefaults(opts ...Option) ExecutorOption {
	return func(c *executorConfig) {
		c.defaults = append(c.defaults, opts...)
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16    // 1 MB
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)
