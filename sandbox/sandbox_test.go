package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/wasmplay/executor"
	"github.com/caffeineduck/wasmplay/internal/wasmtest"
)

func TestRunHello(t *testing.T) {
	bin := wasmtest.New().Write(1, "hello\n").Exit(0).Build()
	result := Run(context.Background(), bin, DefaultConfig())
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if result.Stdout != "hello\n" {
		t.Errorf("expected 'hello\\n', got %q", result.Stdout)
	}
}

func TestRunTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond

	result := Run(context.Background(), wasmtest.New().Spin().Build(), cfg)
	if !errors.Is(result.Error, executor.ErrTimedOut) {
		t.Fatalf("expected timeout, got %v", result.Error)
	}
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guest.wasm")
	bin := wasmtest.New().Write(2, "oops").Exit(7).Build()
	if err := os.WriteFile(path, bin, 0o644); err != nil {
		t.Fatal(err)
	}

	result := RunFile(context.Background(), path, DefaultConfig())
	if result.Stderr != "oops" || result.ExitCode != 7 {
		t.Errorf("expected stderr 'oops' and code 7, got %q / %d", result.Stderr, result.ExitCode)
	}
}

func TestRunFileMissing(t *testing.T) {
	result := RunFile(context.Background(), filepath.Join(t.TempDir(), "nope.wasm"), DefaultConfig())
	if result.Error == nil || !strings.Contains(result.Error.Error(), "read module") {
		t.Errorf("expected read error, got %v", result.Error)
	}
}

func TestRunRejectsNonWasm(t *testing.T) {
	result := Run(context.Background(), []byte("\x00asm garbage"), DefaultConfig())
	if !executor.IsLoadError(result.Error) {
		t.Errorf("expected load error, got %v", result.Error)
	}
}
