package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/wasmplay/capture"
	"github.com/caffeineduck/wasmplay/compiler"
	"github.com/caffeineduck/wasmplay/executor"
)

func newCompileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "Compile source with the compile service and run or print the result",
		Long: `Send a source file to the compile service.

In run mode the service returns a wasm32-wasip1 binary, which is executed
locally under the same sandbox as "wasmplay run". Other modes print the
textual artifact:
  wasmplay compile main.rr                 # compile and run
  wasmplay compile main.rr --mode llvm-ir  # print LLVM IR
  wasmplay compile main.rr --mode asm --opt size`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.compile(cmd, args)
		},
	}

	cmd.Flags().String("driver", "", "File with driver code linked into the program")
	cmd.Flags().String("mode", "run", "Output: run, llvm-ir, asm, mlir")
	cmd.Flags().String("opt", "default", "Optimization: none, default, size, aggressive")
	cmd.Flags().String("compiler-url", "", "Compile service base URL")
	cmd.Flags().Duration("timeout", executor.DefaultTimeout, "Execution timeout for run mode")
	cmd.Flags().String("memory", "256mb", "Memory limit: 1mb, 16mb, 64mb, 256mb, 1gb or pages")
	return cmd
}

func (a *app) compile(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	req := compiler.Request{Source: string(source)}
	if path, _ := cmd.Flags().GetString("driver"); path != "" {
		driver, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		req.Driver = string(driver)
	} else {
		req.Driver = a.cfg.Compiler.Driver
	}

	modeFlag, _ := cmd.Flags().GetString("mode")
	if req.Mode, err = compiler.ParseMode(modeFlag); err != nil {
		return err
	}
	if req.Opt, err = compiler.ParseOptLevel(a.cfg.Compiler.Opt); err != nil {
		return err
	}

	decode, err := capture.ParseDecodeMode(a.cfg.Run.Decode)
	if err != nil {
		return err
	}

	execOpts, err := a.executorOptions(cmd)
	if err != nil {
		return err
	}
	exec, err := executor.New(nil, execOpts...)
	if err != nil {
		return err
	}
	defer exec.Close()

	client := compiler.NewClient(a.cfg.Compiler.URL, compiler.WithTimeout(a.cfg.Compiler.Timeout))
	playground := compiler.NewPlayground(client, exec,
		executor.WithTimeout(a.cfg.Run.Timeout),
		executor.WithDecodeMode(decode),
		executor.WithOutputLimit(a.cfg.Run.OutputLimit),
	)

	out := playground.Submit(cmd.Context(), req)
	fmt.Fprintln(cmd.OutOrStdout(), out.Text)
	if out.Kind == compiler.OutcomeError {
		return exitCode(1)
	}
	return nil
}
