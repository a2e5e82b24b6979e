package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/wasmplay/capture"
	"github.com/caffeineduck/wasmplay/executor"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [file.wasm]",
		Short: "Run a wasm32-wasip1 module",
		Long: `Load a module, call its _start export and print what it wrote.

The module can be given as a file or piped on stdin:
  wasmplay run hello.wasm
  cat hello.wasm | wasmplay run

Guest stdout goes to stdout and guest stderr to stderr. wasmplay exits with
the guest's exit code, or 1 if the module failed to load, trapped or timed
out. Exit codes above 255 are reported on stderr and exit 1.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args)
		},
	}

	cmd.Flags().Duration("timeout", executor.DefaultTimeout, "Execution timeout")
	cmd.Flags().String("memory", "256mb", "Memory limit: 1mb, 16mb, 64mb, 256mb, 1gb or pages")
	cmd.Flags().String("decode", "streaming", "UTF-8 decoding: streaming or per-write")
	cmd.Flags().Int64("output-limit", 0, "Max bytes kept per stream (0 = unlimited)")
	return cmd
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	binary, err := readModule(cmd, args)
	if err != nil {
		return err
	}

	mode, err := capture.ParseDecodeMode(a.cfg.Run.Decode)
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

	result := exec.Run(cmd.Context(), binary,
		executor.WithTimeout(a.cfg.Run.Timeout),
		executor.WithDecodeMode(mode),
		executor.WithOutputLimit(a.cfg.Run.OutputLimit),
	)

	fmt.Fprint(cmd.OutOrStdout(), result.Stdout)
	fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)

	if result.Error != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", result.Error)
		return exitCode(1)
	}
	if result.Truncated {
		fmt.Fprintln(cmd.ErrOrStderr(), "wasmplay: output truncated")
	}
	if result.ExitCode != 0 {
		status := exitStatus(result.ExitCode)
		if uint32(status) != result.ExitCode {
			fmt.Fprintf(cmd.ErrOrStderr(), "Process exited with code %d.\n", result.ExitCode)
		}
		return exitCode(status)
	}
	return nil
}

// exitStatus maps a guest exit code onto a process status. Codes above 255
// would be truncated by the OS, possibly to 0, so they become 1.
func exitStatus(code uint32) int {
	if code > 255 {
		return 1
	}
	return int(code)
}

func readModule(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) > 0 && args[0] != "-" {
		return os.ReadFile(args[0])
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		// No piped input, show help
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return nil, fmt.Errorf("no module given: pass a .wasm file or pipe one on stdin")
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no module given: stdin was empty")
	}
	return data, nil
}
