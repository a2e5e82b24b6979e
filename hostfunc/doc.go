// Package hostfunc provides the system-call surface offered to sandboxed
// WASM guests.
//
// Guests built for wasm32-wasip1 import their operating system from the
// wasi_snapshot_preview1 module. This package supplies that module without
// granting access to any real resource: no files, no sockets, no
// environment.
//
// # Overview
//
// The surface is the [Capabilities] interface, one method per WASI
// function. [NoOS] is the implementation used by the executor:
//
//   - arguments and environment are empty
//   - clocks are monotonic from run start with millisecond resolution
//   - fds 0, 1 and 2 are character devices; every other fd is EBADF
//   - stdin is always at end of stream
//   - stdout and stderr are appended to a [capture.Output]
//   - every path operation fails with ENOTDIR
//   - polling, signals and sockets fail with ENOSYS
//   - random_get reads crypto/rand
//
// Every call returns a status and never fails the run, with two exceptions.
// proc_exit unwinds the guest with a *sys.ExitError. fd_write given an iovec
// outside linear memory panics with a [*MemoryFault], which aborts the run.
//
// # Registry
//
// The [Registry] maps each import name to its wasm signature and a handler
// that decodes arguments and calls into a [Binding]:
//
//	output := capture.New(capture.DecodeStreaming, 0)
//	binding := hostfunc.NewBinding(hostfunc.NewNoOS(output))
//	if _, err := hostfunc.NewRegistry().Instantiate(ctx, rt, binding); err != nil {
//	    return err
//	}
//	// instantiate the guest, then
//	binding.Bind(guest.ExportedMemory("memory"))
//
// # Memory Safety
//
// All guest addresses go through [MemoryView], which checks every access
// against the current memory size before touching it.
package hostfunc
