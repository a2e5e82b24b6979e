// Package sandbox runs a single guest module without managing an
// executor. It is the shortest path from wasm bytes to captured output.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/caffeineduck/wasmplay/capture"
	"github.com/caffeineduck/wasmplay/executor"
	"github.com/caffeineduck/wasmplay/hostfunc"
)

type Config struct {
	Timeout     time.Duration
	MemoryPages uint32
	Decode      capture.DecodeMode
	OutputLimit int64
	Registry    *hostfunc.Registry
}

func DefaultConfig() Config {
	return Config{
		Timeout:     executor.DefaultTimeout,
		MemoryPages: executor.MemoryLimit256MB,
		Decode:      capture.DecodeStreaming,
	}
}

// Run executes binary with a throwaway executor.
func Run(ctx context.Context, binary []byte, cfg Config) executor.Result {
	exec, err := executor.New(cfg.Registry, executor.WithMemoryLimit(cfg.MemoryPages))
	if err != nil {
		return executor.Result{Error: fmt.Errorf("create executor: %w", err)}
	}
	defer exec.Close()

	return exec.Run(ctx, binary,
		executor.WithTimeout(cfg.Timeout),
		executor.WithDecodeMode(cfg.Decode),
		executor.WithOutputLimit(cfg.OutputLimit),
	)
}

// RunFile reads a module from path and runs it.
func RunFile(ctx context.Context, path string, cfg Config) executor.Result {
	binary, err := os.ReadFile(path)
	if err != nil {
		return executor.Result{Error: fmt.Errorf("read module: %w", err)}
	}
	return Run(ctx, binary, cfg)
}
