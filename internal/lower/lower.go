// Package lower turns a verified ir.Function into machine code for one
// architecture. Architecture packages register themselves from init, the
// same way database drivers do, so callers blank-import the backends they
// need.
package lower

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tinyrange/jitadd/internal/asm"
	"github.com/tinyrange/jitadd/internal/ir"
	"github.com/tinyrange/jitadd/internal/target"
)

// Backend lowers a single function to position-independent machine code that
// follows the architecture's C calling convention.
type Backend interface {
	Lower(fn *ir.Function) (asm.Program, error)
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[target.Architecture]Backend)
)

// RegisterBackend wires an architecture-specific backend. It panics when the
// same architecture is registered twice so mistakes are caught during init.
func RegisterBackend(arch target.Architecture, backend Backend) {
	if arch == target.ArchitectureInvalid {
		panic("lower: cannot register backend for invalid architecture")
	}
	if backend == nil {
		panic("lower: backend must be non-nil")
	}

	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, exists := backends[arch]; exists {
		panic(fmt.Sprintf("lower: backend for %s already registered", arch))
	}
	backends[arch] = backend
}

// Lookup returns the backend registered for arch.
func Lookup(arch target.Architecture) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	if backend, ok := backends[arch]; ok {
		return backend, nil
	}
	if arch == target.ArchitectureInvalid || arch == "" {
		return nil, fmt.Errorf("lower: architecture must be specified")
	}
	return nil, fmt.Errorf("lower: no backend registered for %q", arch)
}

// Registered lists the architectures with a backend, sorted.
func Registered() []target.Architecture {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	out := make([]target.Architecture, 0, len(backends))
	for arch := range backends {
		out = append(out, arch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Function lowers fn with the backend for desc's architecture.
func Function(desc target.Descriptor, fn *ir.Function) (asm.Program, error) {
	if fn == nil {
		return asm.Program{}, fmt.Errorf("lower: function must be non-nil")
	}
	backend, err := Lookup(desc.Arch)
	if err != nil {
		return asm.Program{}, err
	}
	prog, err := backend.Lower(fn)
	if err != nil {
		return asm.Program{}, fmt.Errorf("lower %s for %s: %w", fn.Name, desc.Arch, err)
	}
	return prog, nil
}

// SingleBlock returns the only block of fn. Without branch instructions a
// function with more than one block has unreachable code, which is rejected.
func SingleBlock(fn *ir.Function) (ir.Block, error) {
	blocks := fn.Blocks()
	switch len(blocks) {
	case 0:
		return 0, fmt.Errorf("function %%%s has no blocks", fn.Name)
	case 1:
		return blocks[0], nil
	default:
		return 0, fmt.Errorf("function %%%s has %d blocks; only straight-line code is supported", fn.Name, len(blocks))
	}
}

// RequireI64 rejects values whose type is not i64. Every register in the
// supported backends is 64 bits wide and narrower arithmetic is not emitted.
func RequireI64(fn *ir.Function, vals ...ir.Value) error {
	for _, v := range vals {
		if ty := fn.ValueType(v); ty != ir.I64 {
			return fmt.Errorf("%s has type %s; only i64 is supported", v, ty)
		}
	}
	return nil
}
