package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/caffeineduck/wasmplay/capture"
	"github.com/caffeineduck/wasmplay/hostfunc"
)

// Names of the two exports every guest must provide.
const (
	MemoryExport = "memory"
	EntryExport  = "_start"
)

// Instance is a loaded guest that has not run yet. It owns its own wazero
// runtime, which is closed when the run ends. An Instance runs at most once.
type Instance struct {
	runID    string
	cfg      runConfig
	exec     *Executor
	loadedAt time.Time

	runtime wazero.Runtime
	module  api.Module
	entry   api.Function
	memory  api.Memory
	output  *capture.Output
	noos    *hostfunc.NoOS

	used      atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// RunID returns the id the run will report.
func (i *Instance) RunID() string { return i.runID }

// Memory returns the guest's exported linear memory.
func (i *Instance) Memory() api.Memory { return i.memory }

// load compiles binary in rt, links the capability surface and verifies
// the mandatory exports. It never calls the entry point.
func (e *Executor) load(ctx context.Context, rt wazero.Runtime, binary []byte, cfg runConfig) (*Instance, error) {
	compiled, err := rt.CompileModule(ctx, binary)
	if err != nil {
		return nil, loadError("compile", "invalid wasm module", err)
	}
	defer compiled.Close(ctx)

	if err := verifyImports(compiled, e.registry); err != nil {
		return nil, err
	}
	if err := verifyExports(compiled); err != nil {
		return nil, err
	}

	output := capture.New(cfg.decode, cfg.outputLimit)
	var noosOpts []hostfunc.NoOSOption
	if cfg.random != nil {
		noosOpts = append(noosOpts, hostfunc.WithRandomSource(cfg.random))
	}
	noos := hostfunc.NewNoOS(output, noosOpts...)
	binding := hostfunc.NewBinding(noos)

	if _, err := e.registry.Instantiate(ctx, rt, binding); err != nil {
		return nil, loadError("link", "", err)
	}

	// Start functions are disabled so _start only runs under the supervisor.
	modConfig := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions()
	mod, err := rt.InstantiateModule(ctx, compiled, modConfig)
	if err != nil {
		return nil, loadError("instantiate", "", err)
	}

	memory := mod.ExportedMemory(MemoryExport)
	entry := mod.ExportedFunction(EntryExport)
	if memory == nil || entry == nil {
		mod.Close(ctx)
		return nil, loadError("verify", "mandatory exports missing after instantiation", nil)
	}
	binding.Bind(memory)

	return &Instance{
		runID:   cfg.runID,
		cfg:     cfg,
		exec:    e,
		runtime: rt,
		module:  mod,
		entry:   entry,
		memory:  memory,
		output:  output,
		noos:    noos,
	}, nil
}

func verifyImports(compiled wazero.CompiledModule, registry *hostfunc.Registry) error {
	if mems := compiled.ImportedMemories(); len(mems) > 0 {
		module, name, _ := mems[0].Import()
		return loadError("link", fmt.Sprintf("imported memory %s.%s is not supported", module, name), nil)
	}
	for _, fn := range compiled.ImportedFunctions() {
		module, name, _ := fn.Import()
		if module != hostfunc.ModuleName {
			return loadError("link", fmt.Sprintf("unresolved import %s.%s", module, name), nil)
		}
		def, ok := registry.Get(name)
		if !ok {
			return loadError("link", fmt.Sprintf("unresolved import %s.%s", module, name), nil)
		}
		if !sameTypes(fn.ParamTypes(), def.Params) || !sameTypes(fn.ResultTypes(), def.Results) {
			return loadError("link", fmt.Sprintf("import %s.%s has signature %s, expected %s",
				module, name, signature(fn.ParamTypes(), fn.ResultTypes()), signature(def.Params, def.Results)), nil)
		}
	}
	return nil
}

func verifyExports(compiled wazero.CompiledModule) error {
	if _, ok := compiled.ExportedMemories()[MemoryExport]; !ok {
		return loadError("verify", "wasm module does not export a memory object", nil)
	}
	entry, ok := compiled.ExportedFunctions()[EntryExport]
	if !ok {
		return loadError("verify", "wasm module does not export `_start`", nil)
	}
	if len(entry.ParamTypes()) > 0 || len(entry.ResultTypes()) > 0 {
		return loadError("verify", fmt.Sprintf("`_start` has signature %s, expected () -> ()",
			signature(entry.ParamTypes(), entry.ResultTypes())), nil)
	}
	return nil
}

func sameTypes(a, b []api.ValueType) bool {
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

func signature(params, results []api.ValueType) string {
	names := func(ts []api.ValueType) string {
		s := make([]string, len(ts))
		for i, t := range ts {
			s[i] = api.ValueTypeName(t)
		}
		return "(" + strings.Join(s, ",") + ")"
	}
	return names(params) + " -> " + names(results)
}

// Close releases the instance without running it. It is safe to call
// after Run.
func (i *Instance) Close(ctx context.Context) error {
	i.used.Store(true)
	return i.close(ctx)
}

func (i *Instance) close(ctx context.Context) error {
	i.closeOnce.Do(func() {
		i.closeErr = i.runtime.Close(ctx)
		i.exec.release(i)
	})
	return i.closeErr
}
