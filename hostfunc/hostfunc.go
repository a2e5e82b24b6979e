package hostfunc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ModuleName is the import module guests compiled for wasm32-wasip1 use.
const ModuleName = "wasi_snapshot_preview1"

// Handler adapts a raw wazero call to a Capabilities method. Params are
// read from stack and the result, if any, is stored in stack[0].
type Handler func(ctx context.Context, b *Binding, mod api.Module, stack []uint64)

// Definition is one host function: its import name, wasm signature and
// handler.
type Definition struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	Handler Handler
}

// Registry is the table of host functions exported to guests.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Definition
}

// NewRegistry returns a registry holding the full preview1 table.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Definition, len(preview1))}
	for _, def := range preview1 {
		r.funcs[def.Name] = def
	}
	return r
}

// Register adds or replaces a definition.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	r.funcs[def.Name] = def
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	def, ok := r.funcs[name]
	r.mu.RUnlock()
	return def, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instantiate builds the host module in rt with every registered function
// dispatching through b.
func (r *Registry) Instantiate(ctx context.Context, rt wazero.Runtime, b *Binding) (api.Module, error) {
	builder := rt.NewHostModuleBuilder(ModuleName)
	for _, name := range r.List() {
		def, _ := r.Get(name)
		handler := def.Handler
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				handler(ctx, b, mod, stack)
			}), def.Params, def.Results).
			WithName(def.Name).
			Export(def.Name)
	}
	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", ModuleName, err)
	}
	return mod, nil
}

// Binding connects a Capabilities implementation to the memory of one
// guest instance.
type Binding struct {
	caps Capabilities

	mu  sync.RWMutex
	mem api.Memory
}

// NewBinding returns an unbound binding for caps. Until Bind is called,
// host calls use the calling module's default memory.
func NewBinding(caps Capabilities) *Binding {
	return &Binding{caps: caps}
}

// Bind fixes the linear memory every host call reads and writes.
func (b *Binding) Bind(mem api.Memory) {
	b.mu.Lock()
	b.mem = mem
	b.mu.Unlock()
}

// Capabilities returns the bound implementation.
func (b *Binding) Capabilities() Capabilities {
	return b.caps
}

// View returns the memory view for a call made by mod.
func (b *Binding) View(mod api.Module) MemoryView {
	b.mu.RLock()
	mem := b.mem
	b.mu.RUnlock()
	if mem == nil && mod != nil {
		mem = mod.Memory()
	}
	return NewMemoryView(mem)
}
