package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/wasmplay/compiler"
	"github.com/caffeineduck/wasmplay/executor"
	"github.com/caffeineduck/wasmplay/internal/metrics"
	"github.com/caffeineduck/wasmplay/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for running modules",
		Long: `Start an HTTP server that runs modules on request.

Endpoints:
  POST   /api/run       Run a module {"wasm": "<base64>", "timeout": "5s"}
  POST   /api/compile   Compile via the compile service and run the result
  GET    /health        Health check
  GET    /metrics       Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd)
		},
	}

	cmd.Flags().String("addr", "127.0.0.1:3000", "Address to listen on")
	cmd.Flags().Duration("timeout", executor.DefaultTimeout, "Default execution timeout")
	cmd.Flags().String("memory", "256mb", "Memory limit: 1mb, 16mb, 64mb, 256mb, 1gb or pages")
	cmd.Flags().String("compiler-url", "", "Compile service base URL (empty disables /api/compile)")
	return cmd
}

func (a *app) serve(cmd *cobra.Command) error {
	recorder := metrics.New()

	execOpts, err := a.executorOptions(cmd)
	if err != nil {
		return err
	}
	execOpts = append(execOpts, executor.WithObserver(recorder))
	exec, err := executor.New(nil, execOpts...)
	if err != nil {
		return err
	}
	defer exec.Close()

	var playground *compiler.Playground
	if a.cfg.Compiler.URL != "" {
		client := compiler.NewClient(a.cfg.Compiler.URL, compiler.WithTimeout(a.cfg.Compiler.Timeout))
		playground = compiler.NewPlayground(client, exec, executor.WithTimeout(a.cfg.Run.Timeout))
	}

	srv := server.New(a.cfg, exec, playground, recorder, a.logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-cmd.Context().Done():
		return srv.Shutdown(context.WithoutCancel(cmd.Context()))
	}
}
