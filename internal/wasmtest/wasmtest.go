// Package wasmtest assembles small wasm32-wasip1 guest binaries for tests.
//
// Guests are encoded directly with wabin, so tests need no toolchain and
// no checked-in binaries.
//
//	b := wasmtest.New()
//	b.Write(1, "hello\n")
//	b.Exit(0)
//	bin := b.Build()
package wasmtest

import (
	"encoding/binary"
	"fmt"

	wabin "github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/leb128"
	"github.com/tetratelabs/wabin/wasm"

	"github.com/caffeineduck/wasmplay/hostfunc"
)

const (
	scratchPtr = 16   // nwritten, nread and other result slots
	dataStart  = 1024 // first byte handed out for guest data
)

// Builder accumulates imports, static data and the entry point body.
type Builder struct {
	types   []*wasm.FunctionType
	imports []*wasm.Import
	byName  map[string]uint32
	data    []*wasm.DataSegment
	next    uint32

	memPages     uint32
	memoryExport string
	entryName    string
	entryParams  []wasm.ValueType
	locals       []wasm.ValueType
	body         []byte
}

// New returns a builder for a guest with one page of memory exported as
// "memory" and an entry point "_start" taking and returning nothing.
func New() *Builder {
	return &Builder{
		byName:       make(map[string]uint32),
		next:         dataStart,
		memPages:     1,
		memoryExport: "memory",
		entryName:    "_start",
	}
}

// MemoryName changes the export name of the memory. An empty name leaves
// the memory unexported.
func (b *Builder) MemoryName(name string) *Builder {
	b.memoryExport = name
	return b
}

// Entry renames the entry point and gives it params. An empty name leaves
// the function unexported.
func (b *Builder) Entry(name string, params ...wasm.ValueType) *Builder {
	b.entryName = name
	b.entryParams = params
	return b
}

// Locals declares locals for the entry point body.
func (b *Builder) Locals(types ...wasm.ValueType) *Builder {
	b.locals = append(b.locals, types...)
	return b
}

// Import adds a wasi_snapshot_preview1 import using the signature the host
// registry declares for it and returns its function index. Importing the
// same name twice returns the first index.
func (b *Builder) Import(name string) uint32 {
	def, ok := hostfunc.NewRegistry().Get(name)
	if !ok {
		panic(fmt.Sprintf("wasmtest: unknown wasi function %q", name))
	}
	return b.ImportFrom(hostfunc.ModuleName, name, toValueTypes(def.Params), toValueTypes(def.Results))
}

// ImportFrom adds an arbitrary function import. Imports may be added after
// code: import indices never shift, only the entry point's does.
func (b *Builder) ImportFrom(module, name string, params, results []wasm.ValueType) uint32 {
	key := module + "." + name
	if idx, ok := b.byName[key]; ok {
		return idx
	}
	typeIdx := b.typeIndex(params, results)
	idx := uint32(len(b.imports))
	b.imports = append(b.imports, &wasm.Import{
		Type:     wasm.ExternTypeFunc,
		Module:   module,
		Name:     name,
		DescFunc: typeIdx,
	})
	b.byName[key] = idx
	return idx
}

// Alloc places data in memory and returns its address.
func (b *Builder) Alloc(data []byte) uint32 {
	addr := b.next
	b.data = append(b.data, &wasm.DataSegment{
		OffsetExpression: &wasm.ConstantExpression{
			Opcode: wasm.OpcodeI32Const,
			Data:   leb128.EncodeInt32(int32(addr)),
		},
		Init: append([]byte(nil), data...),
	})
	b.next += uint32(len(data))
	b.next = (b.next + 7) &^ 7
	return addr
}

// Iovecs lays out an iovec array pointing at regions and returns its
// address.
func (b *Builder) Iovecs(regions ...Region) uint32 {
	buf := make([]byte, 8*len(regions))
	for i, r := range regions {
		binary.LittleEndian.PutUint32(buf[i*8:], r.Addr)
		binary.LittleEndian.PutUint32(buf[i*8+4:], r.Len)
	}
	return b.Alloc(buf)
}

// Region is an (address, length) pair in guest memory.
type Region struct {
	Addr uint32
	Len  uint32
}

// Code appends raw instructions to the entry point body.
func (b *Builder) Code(instrs ...[]byte) *Builder {
	for _, in := range instrs {
		b.body = append(b.body, in...)
	}
	return b
}

// Write emits one fd_write call per chunk, in order.
func (b *Builder) Write(fd uint32, chunks ...string) *Builder {
	fdWrite := b.Import("fd_write")
	for _, c := range chunks {
		addr := b.Alloc([]byte(c))
		iov := b.Iovecs(Region{Addr: addr, Len: uint32(len(c))})
		b.Code(CallDrop(fdWrite, I32(int32(fd)), I32(int32(iov)), I32(1), I32(scratchPtr)))
	}
	return b
}

// WriteVec emits a single fd_write call with one iovec per chunk.
func (b *Builder) WriteVec(fd uint32, chunks ...[]byte) *Builder {
	fdWrite := b.Import("fd_write")
	regions := make([]Region, len(chunks))
	for i, c := range chunks {
		regions[i] = Region{Addr: b.Alloc(c), Len: uint32(len(c))}
	}
	iov := b.Iovecs(regions...)
	return b.Code(CallDrop(fdWrite, I32(int32(fd)), I32(int32(iov)), I32(int32(len(chunks))), I32(scratchPtr)))
}

// WriteRaw emits fd_write with caller-chosen iovec address and count.
func (b *Builder) WriteRaw(fd, iovs, count uint32) *Builder {
	fdWrite := b.Import("fd_write")
	return b.Code(CallDrop(fdWrite, I32(int32(fd)), I32(int32(iovs)), I32(int32(count)), I32(scratchPtr)))
}

// Exit emits proc_exit(code).
func (b *Builder) Exit(code uint32) *Builder {
	procExit := b.Import("proc_exit")
	return b.Code(I32(int32(code)), Call(procExit))
}

// Spin emits a loop that never ends.
func (b *Builder) Spin() *Builder {
	return b.Code([]byte{wasm.OpcodeLoop, blockEmpty, wasm.OpcodeBr, 0x00, wasm.OpcodeEnd})
}

// Trap emits unreachable.
func (b *Builder) Trap() *Builder {
	return b.Code([]byte{wasm.OpcodeUnreachable})
}

// Build encodes the module.
func (b *Builder) Build() []byte {
	entryType := b.typeIndex(b.entryParams, nil)
	entryIdx := uint32(len(b.imports))

	m := &wasm.Module{
		TypeSection:     b.types,
		ImportSection:   b.imports,
		FunctionSection: []wasm.Index{entryType},
		MemorySection:   &wasm.Memory{Min: b.memPages},
		CodeSection: []*wasm.Code{{
			LocalTypes: b.locals,
			Body:       append(append([]byte(nil), b.body...), wasm.OpcodeEnd),
		}},
		DataSection: b.data,
	}
	if b.memoryExport != "" {
		m.ExportSection = append(m.ExportSection, &wasm.Export{Type: wasm.ExternTypeMemory, Name: b.memoryExport, Index: 0})
	}
	if b.entryName != "" {
		m.ExportSection = append(m.ExportSection, &wasm.Export{Type: wasm.ExternTypeFunc, Name: b.entryName, Index: entryIdx})
	}
	return wabin.EncodeModule(m)
}

func (b *Builder) typeIndex(params, results []wasm.ValueType) uint32 {
	for i, t := range b.types {
		if equalTypes(t.Params, params) && equalTypes(t.Results, results) {
			return uint32(i)
		}
	}
	b.types = append(b.types, &wasm.FunctionType{Params: params, Results: results})
	return uint32(len(b.types) - 1)
}

func equalTypes(a, b []wasm.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func toValueTypes[T ~byte](in []T) []wasm.ValueType {
	out := make([]wasm.ValueType, len(in))
	for i, v := range in {
		out[i] = wasm.ValueType(v)
	}
	return out
}

// MemoryOnly returns a module that exports one page of memory and nothing
// else.
func MemoryOnly() []byte {
	return Memory(1)
}

// Memory is a module exporting only a memory of the given page count.
func Memory(pages uint32) []byte {
	return wabin.EncodeModule(&wasm.Module{
		MemorySection: &wasm.Memory{Min: pages},
		ExportSection: []*wasm.Export{{Type: wasm.ExternTypeMemory, Name: "memory", Index: 0}},
	})
}

const blockEmpty = 0x40

// I32 is i32.const v.
func I32(v int32) []byte {
	return append([]byte{wasm.OpcodeI32Const}, leb128.EncodeInt32(v)...)
}

// I64 is i64.const v.
func I64(v int64) []byte {
	return append([]byte{wasm.OpcodeI64Const}, leb128.EncodeInt64(v)...)
}

// Call is call idx.
func Call(idx uint32) []byte {
	return append([]byte{wasm.OpcodeCall}, leb128.EncodeUint32(idx)...)
}

// CallDrop pushes args, calls idx and drops the single result.
func CallDrop(idx uint32, args ...[]byte) []byte {
	var out []byte
	for _, a := range args {
		out = append(out, a...)
	}
	out = append(out, Call(idx)...)
	return append(out, wasm.OpcodeDrop)
}
