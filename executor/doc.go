// Package executor loads untrusted wasm32-wasip1 modules and runs their
// entry point under a wall-clock deadline.
//
// # Overview
//
// Every run gets a fresh wazero runtime linked against the minimal
// capability surface in [hostfunc]. Nothing is shared between runs except
// compiled code, which is kept in a compilation cache. Beyond stdout and
// stderr, clocks and random bytes, the guest can reach nothing on the host.
//
// # Basic Usage
//
//	exec, err := executor.New(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	result := exec.Run(ctx, wasmBytes, executor.WithTimeout(5*time.Second))
//	fmt.Print(result.Stdout)
//	os.Exit(int(result.ExitCode))
//
// # Outcomes
//
// A Result always carries whatever output the guest produced, even when
// the run timed out or trapped. Termination says how the run ended:
//
//   - Completed: _start returned (FellThrough) or the guest called proc_exit.
//   - Faulted: the guest trapped.
//   - TimedOut: the deadline passed; the runtime was closed under the guest.
//   - Canceled: the caller's context was canceled.
//   - Aborted: the module failed to load, or fd_write was handed an
//     out-of-bounds buffer.
//
// Errors are *Error values and match the ErrLoad, ErrFaulted, ErrTimedOut
// and ErrCanceled sentinels with errors.Is.
//
// # Two-step Runs
//
// Load and Instance.Run split the run in two, which lets a caller inspect
// a guest's memory before calling its entry point:
//
//	inst, err := exec.Load(ctx, wasmBytes)
//	if err != nil {
//	    return err
//	}
//	result := inst.Run(ctx)
package executor
