package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caffeineduck/wasmplay/executor"
	"github.com/caffeineduck/wasmplay/hostfunc"
	"github.com/caffeineduck/wasmplay/internal/config"
	"github.com/caffeineduck/wasmplay/internal/logging"
)

// flagKeys maps config keys to the flag that overrides them.
var flagKeys = map[string]string{
	"run.timeout":      "timeout",
	"run.decode":       "decode",
	"run.output_limit": "output-limit",
	"compiler.url":     "compiler-url",
	"compiler.opt":     "opt",
	"server.addr":      "addr",
	"log.level":        "log-level",
	"log.format":       "log-format",
}

// app carries what PersistentPreRunE resolved for the subcommand.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

// exitCode asks Execute to exit with a specific status without printing.
type exitCode int

func (c exitCode) Error() string { return "exit status " + strconv.Itoa(int(c)) }

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "wasmplay",
		Short: "Run untrusted wasm32-wasip1 programs in a sandbox",
		Long: `wasmplay - Run untrusted WebAssembly programs safely.

Guests get stdout, stderr, clocks and random bytes. They see no files, no
network, no arguments and no environment. Every run has a deadline.

Configuration is read from wasmplay.yaml in the working directory or
$HOME/.wasmplay, then WASMPLAY_* environment variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(file, cmd.Flags(), flagKeys)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Output: cfg.Log.Output,
			})
			if err != nil {
				return err
			}
			executor.SetLogger(logger)
			hostfunc.SetLogger(logger)
			a.cfg = cfg
			a.logger = logger
			return nil
		},
	}

	root.PersistentFlags().String("config", "", "Config file (default: ./wasmplay.yaml or $HOME/.wasmplay/wasmplay.yaml)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "Log format: console, json")
	root.PersistentFlags().Bool("no-cache", false, "Disable the on-disk compilation cache")

	root.AddCommand(newRunCmd(a), newCompileCmd(a), newServeCmd(a))
	return root
}

// Execute runs the CLI and exits with the guest's status when one was
// requested.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		var code exitCode
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// executorOptions builds the executor options shared by every command.
func (a *app) executorOptions(cmd *cobra.Command) ([]executor.ExecutorOption, error) {
	opts := []executor.ExecutorOption{executor.WithLogger(a.logger)}

	noCache, _ := cmd.Flags().GetBool("no-cache")
	if !noCache {
		if a.cfg.Run.CacheDir != "" {
			opts = append(opts, executor.WithCacheDir(a.cfg.Run.CacheDir))
		} else {
			opts = append(opts, executor.WithDiskCache())
		}
	}

	pages := a.cfg.Run.MemoryPages
	if f := cmd.Flags().Lookup("memory"); f != nil && f.Changed {
		p, err := parseMemoryLimit(f.Value.String())
		if err != nil {
			return nil, err
		}
		pages = p
	}
	opts = append(opts, executor.WithMemoryLimit(pages))
	return opts, nil
}

// parseMemoryLimit accepts a size like "64mb" or a raw page count.
func parseMemoryLimit(s string) (uint32, error) {
	switch strings.ToLower(s) {
	case "1mb":
		return executor.MemoryLimit1MB, nil
	case "16mb":
		return executor.MemoryLimit16MB, nil
	case "64mb":
		return executor.MemoryLimit64MB, nil
	case "256mb":
		return executor.MemoryLimit256MB, nil
	case "1gb":
		return executor.MemoryLimit1GB, nil
	}
	pages, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q (expected 1mb, 16mb, 64mb, 256mb, 1gb or a page count)", s)
	}
	return uint32(pages), nil
}
