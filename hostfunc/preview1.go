package hostfunc

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

const (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

var errnoResult = []api.ValueType{i32}

func sig(params ...api.ValueType) []api.ValueType { return params }

func u32(v uint64) uint32 { return api.DecodeU32(v) }

// errnoFunc builds a Definition whose handler returns a single errno.
func errnoFunc(name string, params []api.ValueType, call func(ctx context.Context, c Capabilities, mem MemoryView, s []uint64) Errno) Definition {
	return Definition{
		Name:    name,
		Params:  params,
		Results: errnoResult,
		Handler: func(ctx context.Context, b *Binding, mod api.Module, stack []uint64) {
			stack[0] = uint64(call(ctx, b.caps, b.View(mod), stack))
		},
	}
}

// procExit closes the guest with the requested code and unwinds it. The
// engine turns the panic into a *sys.ExitError returned from the entry
// point call.
func procExit(ctx context.Context, b *Binding, mod api.Module, stack []uint64) {
	code := u32(stack[0])
	b.caps.ProcExit(ctx, code)
	_ = mod.CloseWithExitCode(ctx, code)
	panic(sys.NewExitError(code))
}

// fdWrite panics with the fault so the run aborts instead of the guest
// seeing an errno.
func fdWrite(ctx context.Context, b *Binding, mod api.Module, stack []uint64) {
	errno, err := b.caps.FdWrite(ctx, b.View(mod), u32(stack[0]), u32(stack[1]), u32(stack[2]), u32(stack[3]))
	if err != nil {
		Logger().Debug("fd_write fault", zap.Error(err))
		panic(err)
	}
	stack[0] = uint64(errno)
}

var preview1 = []Definition{
	errnoFunc("args_get", sig(i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.ArgsGet(ctx, m, u32(s[0]), u32(s[1]))
	}),
	errnoFunc("args_sizes_get", sig(i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.ArgsSizesGet(ctx, m, u32(s[0]), u32(s[1]))
	}),
	errnoFunc("environ_get", sig(i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.EnvironGet(ctx, m, u32(s[0]), u32(s[1]))
	}),
	errnoFunc("environ_sizes_get", sig(i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.EnvironSizesGet(ctx, m, u32(s[0]), u32(s[1]))
	}),
	errnoFunc("clock_res_get", sig(i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.ClockResGet(ctx, m, u32(s[0]), u32(s[1]))
	}),
	errnoFunc("clock_time_get", sig(i32, i64, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.ClockTimeGet(ctx, m, u32(s[0]), s[1], u32(s[2]))
	}),
	errnoFunc("fd_advise", sig(i32, i64, i64, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdAdvise(ctx, u32(s[0]), s[1], s[2], u32(s[3]))
	}),
	errnoFunc("fd_allocate", sig(i32, i64, i64), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdAllocate(ctx, u32(s[0]), s[1], s[2])
	}),
	errnoFunc("fd_close", sig(i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdClose(ctx, u32(s[0]))
	}),
	errnoFunc("fd_datasync", sig(i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdDatasync(ctx, u32(s[0]))
	}),
	errnoFunc("fd_fdstat_get", sig(i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdFdstatGet(ctx, m, u32(s[0]), u32(s[1]))
	}),
	errnoFunc("fd_fdstat_set_flags", sig(i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdFdstatSetFlags(ctx, u32(s[0]), u32(s[1]))
	}),
	errnoFunc("fd_fdstat_set_rights", sig(i32, i64, i64), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdFdstatSetRights(ctx, u32(s[0]), s[1], s[2])
	}),
	errnoFunc("fd_filestat_get", sig(i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdFilestatGet(ctx, m, u32(s[0]), u32(s[1]))
	}),
	errnoFunc("fd_filestat_set_size", sig(i32, i64), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdFilestatSetSize(ctx, u32(s[0]), s[1])
	}),
	errnoFunc("fd_filestat_set_times", sig(i32, i64, i64, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdFilestatSetTimes(ctx, u32(s[0]), s[1], s[2], u32(s[3]))
	}),
	errnoFunc("fd_pread", sig(i32, i32, i32, i64, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdPread(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]), s[3], u32(s[4]))
	}),
	errnoFunc("fd_prestat_get", sig(i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdPrestatGet(ctx, m, u32(s[0]), u32(s[1]))
	}),
	errnoFunc("fd_prestat_dir_name", sig(i32, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdPrestatDirName(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]))
	}),
	errnoFunc("fd_pwrite", sig(i32, i32, i32, i64, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdPwrite(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]), s[3], u32(s[4]))
	}),
	errnoFunc("fd_read", sig(i32, i32, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdRead(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]), u32(s[3]))
	}),
	errnoFunc("fd_readdir", sig(i32, i32, i32, i64, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdReaddir(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]), s[3], u32(s[4]))
	}),
	errnoFunc("fd_renumber", sig(i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdRenumber(ctx, u32(s[0]), u32(s[1]))
	}),
	errnoFunc("fd_seek", sig(i32, i64, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdSeek(ctx, m, u32(s[0]), int64(s[1]), u32(s[2]), u32(s[3]))
	}),
	errnoFunc("fd_sync", sig(i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdSync(ctx, u32(s[0]))
	}),
	errnoFunc("fd_tell", sig(i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.FdTell(ctx, m, u32(s[0]), u32(s[1]))
	}),
	{Name: "fd_write", Params: sig(i32, i32, i32, i32), Results: errnoResult, Handler: fdWrite},

	errnoFunc("path_create_directory", sig(i32, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.PathCreateDirectory(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]))
	}),
	errnoFunc("path_filestat_get", sig(i32, i32, i32, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.PathFilestatGet(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]), u32(s[3]), u32(s[4]))
	}),
	errnoFunc("path_filestat_set_times", sig(i32, i32, i32, i32, i64, i64, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.PathFilestatSetTimes(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]), u32(s[3]), s[4], s[5], u32(s[6]))
	}),
	errnoFunc("path_link", sig(i32, i32, i32, i32, i32, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.PathLink(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]), u32(s[3]), u32(s[4]), u32(s[5]), u32(s[6]))
	}),
	errnoFunc("path_open", sig(i32, i32, i32, i32, i32, i64, i64, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.PathOpen(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]), u32(s[3]), u32(s[4]), s[5], s[6], u32(s[7]), u32(s[8]))
	}),
	errnoFunc("path_readlink", sig(i32, i32, i32, i32, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.PathReadlink(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]), u32(s[3]), u32(s[4]), u32(s[5]))
	}),
	errnoFunc("path_remove_directory", sig(i32, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.PathRemoveDirectory(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]))
	}),
	errnoFunc("path_rename", sig(i32, i32, i32, i32, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.PathRename(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]), u32(s[3]), u32(s[4]), u32(s[5]))
	}),
	errnoFunc("path_symlink", sig(i32, i32, i32, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.PathSymlink(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]), u32(s[3]), u32(s[4]))
	}),
	errnoFunc("path_unlink_file", sig(i32, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.PathUnlinkFile(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]))
	}),

	errnoFunc("poll_oneoff", sig(i32, i32, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.PollOneoff(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]), u32(s[3]))
	}),
	{Name: "proc_exit", Params: sig(i32), Handler: procExit},
	errnoFunc("proc_raise", sig(i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.ProcRaise(ctx, u32(s[0]))
	}),
	errnoFunc("sched_yield", sig(), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.SchedYield(ctx)
	}),
	errnoFunc("random_get", sig(i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.RandomGet(ctx, m, u32(s[0]), u32(s[1]))
	}),

	errnoFunc("sock_accept", sig(i32, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.SockAccept(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]))
	}),
	errnoFunc("sock_recv", sig(i32, i32, i32, i32, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.SockRecv(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]), u32(s[3]), u32(s[4]), u32(s[5]))
	}),
	errnoFunc("sock_send", sig(i32, i32, i32, i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.SockSend(ctx, m, u32(s[0]), u32(s[1]), u32(s[2]), u32(s[3]), u32(s[4]))
	}),
	errnoFunc("sock_shutdown", sig(i32, i32), func(ctx context.Context, c Capabilities, m MemoryView, s []uint64) Errno {
		return c.SockShutdown(ctx, u32(s[0]), u32(s[1]))
	}),
}
