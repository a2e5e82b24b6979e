package hostfunc

import (
	"context"
)

// Capabilities is the system-call surface offered to a guest, one method
// per wasi_snapshot_preview1 function.
//
// Every method returns a status code and none may fail the run, with two
// exceptions: ProcExit never returns control to the guest, and FdWrite
// returns a non-nil error when the guest hands it memory it does not own.
// That error aborts the run.
type Capabilities interface {
	ArgsGet(ctx context.Context, mem MemoryView, argv, argvBuf uint32) Errno
	ArgsSizesGet(ctx context.Context, mem MemoryView, argcPtr, bufSizePtr uint32) Errno
	EnvironGet(ctx context.Context, mem MemoryView, environ, environBuf uint32) Errno
	EnvironSizesGet(ctx context.Context, mem MemoryView, countPtr, bufSizePtr uint32) Errno

	ClockResGet(ctx context.Context, mem MemoryView, id, resultPtr uint32) Errno
	ClockTimeGet(ctx context.Context, mem MemoryView, id uint32, precision uint64, resultPtr uint32) Errno

	FdAdvise(ctx context.Context, fd uint32, offset, length uint64, advice uint32) Errno
	FdAllocate(ctx context.Context, fd uint32, offset, length uint64) Errno
	FdClose(ctx context.Context, fd uint32) Errno
	FdDatasync(ctx context.Context, fd uint32) Errno
	FdFdstatGet(ctx context.Context, mem MemoryView, fd, resultPtr uint32) Errno
	FdFdstatSetFlags(ctx context.Context, fd, flags uint32) Errno
	FdFdstatSetRights(ctx context.Context, fd uint32, base, inheriting uint64) Errno
	FdFilestatGet(ctx context.Context, mem MemoryView, fd, resultPtr uint32) Errno
	FdFilestatSetSize(ctx context.Context, fd uint32, size uint64) Errno
	FdFilestatSetTimes(ctx context.Context, fd uint32, atim, mtim uint64, flags uint32) Errno
	FdPread(ctx context.Context, mem MemoryView, fd, iovs, iovsLen uint32, offset uint64, nreadPtr uint32) Errno
	FdPrestatGet(ctx context.Context, mem MemoryView, fd, resultPtr uint32) Errno
	FdPrestatDirName(ctx context.Context, mem MemoryView, fd, path, pathLen uint32) Errno
	FdPwrite(ctx context.Context, mem MemoryView, fd, iovs, iovsLen uint32, offset uint64, nwrittenPtr uint32) Errno
	FdRead(ctx context.Context, mem MemoryView, fd, iovs, iovsLen, nreadPtr uint32) Errno
	FdReaddir(ctx context.Context, mem MemoryView, fd, buf, bufLen uint32, cookie uint64, bufUsedPtr uint32) Errno
	FdRenumber(ctx context.Context, fd, to uint32) Errno
	FdSeek(ctx context.Context, mem MemoryView, fd uint32, offset int64, whence, resultPtr uint32) Errno
	FdSync(ctx context.Context, fd uint32) Errno
	FdTell(ctx context.Context, mem MemoryView, fd, resultPtr uint32) Errno
	FdWrite(ctx context.Context, mem MemoryView, fd, iovs, iovsLen, nwrittenPtr uint32) (Errno, error)

	PathCreateDirectory(ctx context.Context, mem MemoryView, fd, path, pathLen uint32) Errno
	PathFilestatGet(ctx context.Context, mem MemoryView, fd, flags, path, pathLen, resultPtr uint32) Errno
	PathFilestatSetTimes(ctx context.Context, mem MemoryView, fd, flags, path, pathLen uint32, atim, mtim uint64, fstFlags uint32) Errno
	PathLink(ctx context.Context, mem MemoryView, oldFd, oldFlags, oldPath, oldPathLen, newFd, newPath, newPathLen uint32) Errno
	PathOpen(ctx context.Context, mem MemoryView, fd, dirflags, path, pathLen, oflags uint32, rightsBase, rightsInheriting uint64, fdflags, openedFdPtr uint32) Errno
	PathReadlink(ctx context.Context, mem MemoryView, fd, path, pathLen, buf, bufLen, bufUsedPtr uint32) Errno
	PathRemoveDirectory(ctx context.Context, mem MemoryView, fd, path, pathLen uint32) Errno
	PathRename(ctx context.Context, mem MemoryView, fd, oldPath, oldPathLen, newFd, newPath, newPathLen uint32) Errno
	PathSymlink(ctx context.Context, mem MemoryView, oldPath, oldPathLen, fd, newPath, newPathLen uint32) Errno
	PathUnlinkFile(ctx context.Context, mem MemoryView, fd, path, pathLen uint32) Errno

	PollOneoff(ctx context.Context, mem MemoryView, in, out, nsubscriptions, neventsPtr uint32) Errno
	ProcExit(ctx context.Context, code uint32)
	ProcRaise(ctx context.Context, sig uint32) Errno
	SchedYield(ctx context.Context) Errno
	RandomGet(ctx context.Context, mem MemoryView, buf, bufLen uint32) Errno

	SockAccept(ctx context.Context, mem MemoryView, fd, flags, resultFdPtr uint32) Errno
	SockRecv(ctx context.Context, mem MemoryView, fd, riData, riDataLen, riFlags, roDataLenPtr, roFlagsPtr uint32) Errno
	SockSend(ctx context.Context, mem MemoryView, fd, siData, siDataLen, siFlags, soDataLenPtr uint32) Errno
	SockShutdown(ctx context.Context, fd, how uint32) Errno
}
