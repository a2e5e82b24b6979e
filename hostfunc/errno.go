package hostfunc

import "fmt"

// Errno is a wasi_snapshot_preview1 status code.
type Errno uint32

// Status codes used by the capability surface. Values follow the WASI
// numbering so guests compiled against wasi-libc interpret them correctly.
const (
	ErrnoSuccess Errno = 0
	ErrnoBadf    Errno = 8
	ErrnoFault   Errno = 21
	ErrnoInval   Errno = 28
	ErrnoNosys   Errno = 52
	ErrnoNotdir  Errno = 54
	ErrnoNotsup  Errno = 58
)

var errnoNames = map[Errno]string{
	ErrnoSuccess: "ESUCCESS",
	ErrnoBadf:    "EBADF",
	ErrnoFault:   "EFAULT",
	ErrnoInval:   "EINVAL",
	ErrnoNosys:   "ENOSYS",
	ErrnoNotdir:  "ENOTDIR",
	ErrnoNotsup:  "ENOTSUP",
}

func (e Errno) String() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Errno(%d)", uint32(e))
}
