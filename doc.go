// Package wasmplay runs untrusted wasm32-wasip1 programs in a sandbox.
//
// # Overview
//
// A guest is a WebAssembly binary that exports a memory named "memory" and
// a "_start" function. wasmplay compiles it, links it against a small
// wasi_snapshot_preview1 surface, runs "_start" under a deadline and
// returns what the guest wrote to stdout and stderr.
//
// Guests get stdout, stderr, clocks and random bytes. Everything else in
// preview1 is present but answers as if no files, arguments or environment
// exist.
//
// # Basic Usage
//
//	exec, _ := executor.New(nil)
//	defer exec.Close()
//
//	result := exec.Run(ctx, binary, executor.WithTimeout(5*time.Second))
//	fmt.Print(result.Stdout)
//	if result.Error != nil {
//	    // load error, trap, timeout or cancellation
//	}
//
// One-off runs can use the [sandbox] package instead:
//
//	result := sandbox.Run(ctx, binary, sandbox.DefaultConfig())
//
// # Packages
//
// [executor] loads and supervises guests. [hostfunc] implements the WASI
// functions. [capture] turns guest bytes into text. [compiler] talks to a
// remote compile service and runs what it returns.
package wasmplay
