package hostfunc

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// MemoryFault reports a guest address range outside linear memory.
type MemoryFault struct {
	Op     string
	Offset uint32
	Length uint64
	Size   uint32
}

func (f *MemoryFault) Error() string {
	return fmt.Sprintf("%s: out of bounds memory access at offset %d length %d (memory size %d)",
		f.Op, f.Offset, f.Length, f.Size)
}

// MemoryView is a borrowed, bounds-checked window onto guest linear
// memory. Every access is checked against the memory's current size.
type MemoryView struct {
	mem api.Memory
}

// NewMemoryView wraps mem. A nil mem yields a view on which every access
// faults.
func NewMemoryView(mem api.Memory) MemoryView {
	return MemoryView{mem: mem}
}

// Size returns the current memory size in bytes.
func (v MemoryView) Size() uint32 {
	if v.mem == nil {
		return 0
	}
	return v.mem.Size()
}

func (v MemoryView) fault(op string, offset uint32, length uint64) *MemoryFault {
	return &MemoryFault{Op: op, Offset: offset, Length: length, Size: v.Size()}
}

func (v MemoryView) check(op string, offset uint32, length uint64) error {
	if v.mem == nil || uint64(offset)+length > uint64(v.mem.Size()) {
		return v.fault(op, offset, length)
	}
	return nil
}

// Read copies length bytes starting at offset.
func (v MemoryView) Read(offset, length uint32) ([]byte, error) {
	if err := v.check("read", offset, uint64(length)); err != nil {
		return nil, err
	}
	buf, ok := v.mem.Read(offset, length)
	if !ok {
		return nil, v.fault("read", offset, uint64(length))
	}
	return append([]byte(nil), buf...), nil
}

// ReadUint32 reads a little-endian u32.
func (v MemoryView) ReadUint32(offset uint32) (uint32, error) {
	if err := v.check("read", offset, 4); err != nil {
		return 0, err
	}
	n, ok := v.mem.ReadUint32Le(offset)
	if !ok {
		return 0, v.fault("read", offset, 4)
	}
	return n, nil
}

// Write copies data to offset.
func (v MemoryView) Write(offset uint32, data []byte) error {
	if err := v.check("write", offset, uint64(len(data))); err != nil {
		return err
	}
	if !v.mem.Write(offset, data) {
		return v.fault("write", offset, uint64(len(data)))
	}
	return nil
}

// PutByte writes a single byte.
func (v MemoryView) PutByte(offset uint32, b byte) error {
	if err := v.check("write", offset, 1); err != nil {
		return err
	}
	if !v.mem.WriteByte(offset, b) {
		return v.fault("write", offset, 1)
	}
	return nil
}

// WriteUint32 writes a little-endian u32.
func (v MemoryView) WriteUint32(offset, n uint32) error {
	if err := v.check("write", offset, 4); err != nil {
		return err
	}
	if !v.mem.WriteUint32Le(offset, n) {
		return v.fault("write", offset, 4)
	}
	return nil
}

// WriteUint64 writes a little-endian u64.
func (v MemoryView) WriteUint64(offset uint32, n uint64) error {
	if err := v.check("write", offset, 8); err != nil {
		return err
	}
	if !v.mem.WriteUint64Le(offset, n) {
		return v.fault("write", offset, 8)
	}
	return nil
}
