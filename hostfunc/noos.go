package hostfunc

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/caffeineduck/wasmplay/capture"
)

// ClockResolution is the granularity reported by clock_res_get and applied
// to clock_time_get.
const ClockResolution = time.Millisecond

const (
	filetypeCharacterDevice = 2
	fdstatSize              = 24
	iovecSize               = 8
)

// NoOS implements Capabilities without touching any real OS resource.
// Only fd_write (into the run's capture) and random_get (into guest
// memory) have an effect.
type NoOS struct {
	output *capture.Output
	random io.Reader
	start  time.Time
	now    func() time.Time

	exitCode atomic.Int64
}

// NoOSOption configures a NoOS.
type NoOSOption func(*NoOS)

// WithRandomSource replaces crypto/rand as the source for random_get.
func WithRandomSource(r io.Reader) NoOSOption {
	return func(n *NoOS) {
		n.random = r
	}
}

// WithClock replaces the wall clock used for the monotonic timer.
func WithClock(now func() time.Time) NoOSOption {
	return func(n *NoOS) {
		n.now = now
	}
}

// NewNoOS returns a capability surface writing guest output to output.
// The monotonic clock starts at zero when NewNoOS is called.
func NewNoOS(output *capture.Output, opts ...NoOSOption) *NoOS {
	n := &NoOS{
		output: output,
		random: rand.Reader,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.start = n.now()
	n.exitCode.Store(-1)
	return n
}

// ExitCode returns the code passed to proc_exit, or false if the guest
// never called it.
func (n *NoOS) ExitCode() (uint32, bool) {
	code := n.exitCode.Load()
	if code < 0 {
		return 0, false
	}
	return uint32(code), true
}

func status(err error) Errno {
	if err != nil {
		return ErrnoFault
	}
	return ErrnoSuccess
}

func isStdio(fd uint32) bool {
	return fd <= 2
}

// Arguments and environment are always empty.

func (n *NoOS) ArgsGet(ctx context.Context, mem MemoryView, argv, argvBuf uint32) Errno {
	return ErrnoSuccess
}

func (n *NoOS) ArgsSizesGet(ctx context.Context, mem MemoryView, argcPtr, bufSizePtr uint32) Errno {
	if err := mem.WriteUint32(argcPtr, 0); err != nil {
		return ErrnoFault
	}
	return status(mem.WriteUint32(bufSizePtr, 0))
}

func (n *NoOS) EnvironGet(ctx context.Context, mem MemoryView, environ, environBuf uint32) Errno {
	return ErrnoSuccess
}

func (n *NoOS) EnvironSizesGet(ctx context.Context, mem MemoryView, countPtr, bufSizePtr uint32) Errno {
	if err := mem.WriteUint32(countPtr, 0); err != nil {
		return ErrnoFault
	}
	return status(mem.WriteUint32(bufSizePtr, 0))
}

// Clocks. Every clock id reads the same monotonic timer.

func (n *NoOS) ClockResGet(ctx context.Context, mem MemoryView, id, resultPtr uint32) Errno {
	return status(mem.WriteUint64(resultPtr, uint64(ClockResolution.Nanoseconds())))
}

func (n *NoOS) ClockTimeGet(ctx context.Context, mem MemoryView, id uint32, precision uint64, resultPtr uint32) Errno {
	elapsed := n.now().Sub(n.start).Truncate(ClockResolution)
	if elapsed < 0 {
		elapsed = 0
	}
	return status(mem.WriteUint64(resultPtr, uint64(elapsed.Nanoseconds())))
}

// Descriptors.

func (n *NoOS) FdAdvise(ctx context.Context, fd uint32, offset, length uint64, advice uint32) Errno {
	return ErrnoSuccess
}

func (n *NoOS) FdAllocate(ctx context.Context, fd uint32, offset, length uint64) Errno {
	return ErrnoBadf
}

func (n *NoOS) FdClose(ctx context.Context, fd uint32) Errno {
	return ErrnoSuccess
}

func (n *NoOS) FdDatasync(ctx context.Context, fd uint32) Errno {
	return ErrnoSuccess
}

func (n *NoOS) FdFdstatGet(ctx context.Context, mem MemoryView, fd, resultPtr uint32) Errno {
	if !isStdio(fd) {
		return ErrnoBadf
	}
	var stat [fdstatSize]byte
	stat[0] = filetypeCharacterDevice
	return status(mem.Write(resultPtr, stat[:]))
}

func (n *NoOS) FdFdstatSetFlags(ctx context.Context, fd, flags uint32) Errno {
	return ErrnoSuccess
}

func (n *NoOS) FdFdstatSetRights(ctx context.Context, fd uint32, base, inheriting uint64) Errno {
	return ErrnoBadf
}

func (n *NoOS) FdFilestatGet(ctx context.Context, mem MemoryView, fd, resultPtr uint32) Errno {
	return ErrnoBadf
}

func (n *NoOS) FdFilestatSetSize(ctx context.Context, fd uint32, size uint64) Errno {
	return ErrnoBadf
}

func (n *NoOS) FdFilestatSetTimes(ctx context.Context, fd uint32, atim, mtim uint64, flags uint32) Errno {
	return ErrnoBadf
}

func (n *NoOS) FdPread(ctx context.Context, mem MemoryView, fd, iovs, iovsLen uint32, offset uint64, nreadPtr uint32) Errno {
	return ErrnoBadf
}

func (n *NoOS) FdPrestatGet(ctx context.Context, mem MemoryView, fd, resultPtr uint32) Errno {
	return ErrnoBadf
}

func (n *NoOS) FdPrestatDirName(ctx context.Context, mem MemoryView, fd, path, pathLen uint32) Errno {
	return ErrnoBadf
}

func (n *NoOS) FdPwrite(ctx context.Context, mem MemoryView, fd, iovs, iovsLen uint32, offset uint64, nwrittenPtr uint32) Errno {
	return ErrnoBadf
}

// FdRead reports end of stream on every descriptor.
func (n *NoOS) FdRead(ctx context.Context, mem MemoryView, fd, iovs, iovsLen, nreadPtr uint32) Errno {
	return status(mem.WriteUint32(nreadPtr, 0))
}

func (n *NoOS) FdReaddir(ctx context.Context, mem MemoryView, fd, buf, bufLen uint32, cookie uint64, bufUsedPtr uint32) Errno {
	return ErrnoBadf
}

func (n *NoOS) FdRenumber(ctx context.Context, fd, to uint32) Errno {
	return ErrnoBadf
}

func (n *NoOS) FdSeek(ctx context.Context, mem MemoryView, fd uint32, offset int64, whence, resultPtr uint32) Errno {
	return ErrnoBadf
}

func (n *NoOS) FdSync(ctx context.Context, fd uint32) Errno {
	return ErrnoSuccess
}

func (n *NoOS) FdTell(ctx context.Context, mem MemoryView, fd, resultPtr uint32) Errno {
	return ErrnoBadf
}

// FdWrite appends every non-empty iovec region to the stream for fd and
// stores the total at nwrittenPtr. The whole iovec list is validated before
// anything is appended, so a faulting call leaves the stream untouched.
func (n *NoOS) FdWrite(ctx context.Context, mem MemoryView, fd, iovs, iovsLen, nwrittenPtr uint32) (Errno, error) {
	stream, ok := n.output.Stream(fd)
	if !ok {
		return ErrnoBadf, nil
	}

	if err := mem.check("fd_write", iovs, uint64(iovsLen)*iovecSize); err != nil {
		return ErrnoFault, err
	}

	type region struct{ base, length uint32 }
	regions := make([]region, 0, iovsLen)
	var total uint64
	for i := uint32(0); i < iovsLen; i++ {
		entry := iovs + i*iovecSize
		base, err := mem.ReadUint32(entry)
		if err != nil {
			return ErrnoFault, fmt.Errorf("fd_write: %w", err)
		}
		length, err := mem.ReadUint32(entry + 4)
		if err != nil {
			return ErrnoFault, fmt.Errorf("fd_write: %w", err)
		}
		if length == 0 {
			continue
		}
		if err := mem.check("read", base, uint64(length)); err != nil {
			return ErrnoFault, fmt.Errorf("fd_write: iovec %d: %w", i, err)
		}
		regions = append(regions, region{base, length})
		total += uint64(length)
	}
	// nwritten is a u32.
	if total > math.MaxUint32 {
		return ErrnoInval, nil
	}

	chunks := make([][]byte, 0, len(regions))
	for _, r := range regions {
		data, err := mem.Read(r.base, r.length)
		if err != nil {
			return ErrnoFault, fmt.Errorf("fd_write: %w", err)
		}
		chunks = append(chunks, data)
	}

	for _, c := range chunks {
		stream.Write(c)
	}
	return status(mem.WriteUint32(nwrittenPtr, uint32(total))), nil
}

// Paths. No filesystem is exposed, so every path lookup fails with ENOTDIR.

func (n *NoOS) PathCreateDirectory(ctx context.Context, mem MemoryView, fd, path, pathLen uint32) Errno {
	return ErrnoNotdir
}

func (n *NoOS) PathFilestatGet(ctx context.Context, mem MemoryView, fd, flags, path, pathLen, resultPtr uint32) Errno {
	return ErrnoNotdir
}

func (n *NoOS) PathFilestatSetTimes(ctx context.Context, mem MemoryView, fd, flags, path, pathLen uint32, atim, mtim uint64, fstFlags uint32) Errno {
	return ErrnoNotdir
}

func (n *NoOS) PathLink(ctx context.Context, mem MemoryView, oldFd, oldFlags, oldPath, oldPathLen, newFd, newPath, newPathLen uint32) Errno {
	return ErrnoNotdir
}

func (n *NoOS) PathOpen(ctx context.Context, mem MemoryView, fd, dirflags, path, pathLen, oflags uint32, rightsBase, rightsInheriting uint64, fdflags, openedFdPtr uint32) Errno {
	return ErrnoNotdir
}

func (n *NoOS) PathReadlink(ctx context.Context, mem MemoryView, fd, path, pathLen, buf, bufLen, bufUsedPtr uint32) Errno {
	return ErrnoNotdir
}

func (n *NoOS) PathRemoveDirectory(ctx context.Context, mem MemoryView, fd, path, pathLen uint32) Errno {
	return ErrnoNotdir
}

func (n *NoOS) PathRename(ctx context.Context, mem MemoryView, fd, oldPath, oldPathLen, newFd, newPath, newPathLen uint32) Errno {
	return ErrnoNotdir
}

func (n *NoOS) PathSymlink(ctx context.Context, mem MemoryView, oldPath, oldPathLen, fd, newPath, newPathLen uint32) Errno {
	return ErrnoNotdir
}

func (n *NoOS) PathUnlinkFile(ctx context.Context, mem MemoryView, fd, path, pathLen uint32) Errno {
	return ErrnoNotdir
}

// Scheduling and process.

func (n *NoOS) PollOneoff(ctx context.Context, mem MemoryView, in, out, nsubscriptions, neventsPtr uint32) Errno {
	return ErrnoNosys
}

// ProcExit records the exit code. Unwinding the guest is the caller's job.
func (n *NoOS) ProcExit(ctx context.Context, code uint32) {
	n.exitCode.Store(int64(code))
	Logger().Debug("guest requested exit", zap.Uint32("code", code))
}

func (n *NoOS) ProcRaise(ctx context.Context, sig uint32) Errno {
	return ErrnoNosys
}

func (n *NoOS) SchedYield(ctx context.Context) Errno {
	return ErrnoSuccess
}

func (n *NoOS) RandomGet(ctx context.Context, mem MemoryView, buf, bufLen uint32) Errno {
	if err := mem.check("random_get", buf, uint64(bufLen)); err != nil {
		return ErrnoFault
	}
	data := make([]byte, bufLen)
	if _, err := io.ReadFull(n.random, data); err != nil {
		Logger().Warn("random source failed", zap.Error(err))
		return ErrnoInval
	}
	return status(mem.Write(buf, data))
}

// Sockets.

func (n *NoOS) SockAccept(ctx context.Context, mem MemoryView, fd, flags, resultFdPtr uint32) Errno {
	return ErrnoNosys
}

func (n *NoOS) SockRecv(ctx context.Context, mem MemoryView, fd, riData, riDataLen, riFlags, roDataLenPtr, roFlagsPtr uint32) Errno {
	return ErrnoNosys
}

func (n *NoOS) SockSend(ctx context.Context, mem MemoryView, fd, siData, siDataLen, siFlags, soDataLenPtr uint32) Errno {
	return ErrnoNosys
}

func (n *NoOS) SockShutdown(ctx context.Context, fd, how uint32) Errno {
	return ErrnoNosys
}

var _ Capabilities = (*NoOS)(nil)
