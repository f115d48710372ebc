// Package jit compiles IR functions into executable memory of the current
// process.
package jit

import (
	"fmt"
	"log/slog"

	"github.com/tinyrange/jitadd/internal/asm"
	"github.com/tinyrange/jitadd/internal/ir"
	"github.com/tinyrange/jitadd/internal/module"
	"github.com/tinyrange/jitadd/internal/target"
)

// codeAlignment is the offset alignment of each function in the code region.
const codeAlignment = 16

type Option func(*Module)

func WithLogger(log *slog.Logger) Option {
	return func(m *Module) {
		if log != nil {
			m.log = log
		}
	}
}

// Module is a JIT module for the host target. Functions are declared, then
// defined, then finalized into one read+execute mapping. A Module is not safe
// for concurrent use.
type Module struct {
	desc  target.Descriptor
	decls module.Declarations
	log   *slog.Logger

	code    map[module.FuncID]asm.Program
	order   []module.FuncID
	region  *region
	entries map[module.FuncID]uintptr
	closed  bool
}

// New creates a JIT module. desc must describe the host, since the code runs
// in this process.
func New(desc target.Descriptor, opts ...Option) (*Module, error) {
	if !desc.IsHost() {
		return nil, module.Errorf("new", "", "target %s is not the host", desc)
	}
	m := &Module{
		desc:    desc,
		log:     slog.Default(),
		code:    make(map[module.FuncID]asm.Program),
		entries: make(map[module.FuncID]uintptr),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Module) Target() target.Descriptor { return m.desc }

func (m *Module) DeclareFunction(name string, linkage module.Linkage, sig ir.Signature) (module.FuncID, error) {
	if m.closed {
		return 0, module.Wrap("declare", name, module.ErrFinalized)
	}
	return m.decls.Declare(name, linkage, sig)
}

// DefineFunction lowers fn to machine code for the declaration id. Bodies
// must be defined before FinalizeDefinitions.
func (m *Module) DefineFunction(id module.FuncID, fn *ir.Function) error {
	if m.region != nil || m.closed {
		name := id.String()
		if decl, ok := m.decls.Get(id); ok {
			name = decl.Name
		}
		return module.Wrap("define", name, module.ErrFinalized)
	}
	decl, prog, err := m.decls.Lower(m.desc, id, fn)
	if err != nil {
		return err
	}
	m.code[id] = prog
	m.order = append(m.order, id)
	m.log.Debug("jit: defined function", "name", decl.Name, "bytes", prog.Len())
	return nil
}

// FinalizeDefinitions copies every defined function into executable memory.
// Every declaration must be resolved: imports have no provider in this
// process and definable functions must have bodies.
func (m *Module) FinalizeDefinitions() error {
	if m.closed {
		return module.Wrap("finalize", "", module.ErrFinalized)
	}
	if m.region != nil {
		return nil
	}
	for _, decl := range m.decls.All() {
		if decl.Linkage == module.Import {
			return module.Errorf("finalize", decl.Name, "unresolved imported symbol")
		}
	}
	if undefined := m.decls.Undefined(); len(undefined) > 0 {
		return module.Wrap("finalize", undefined[0], module.ErrUndefined)
	}
	if len(m.order) == 0 {
		return module.Errorf("finalize", "", "no functions defined")
	}

	var image []byte
	offsets := make(map[module.FuncID]int, len(m.order))
	for _, id := range m.order {
		for len(image)%codeAlignment != 0 {
			image = append(image, 0)
		}
		offsets[id] = len(image)
		image = append(image, m.code[id].Bytes()...)
	}

	reg, err := mapExecutable(image)
	if err != nil {
		return module.Wrap("finalize", "", err)
	}
	m.region = reg
	for id, off := range offsets {
		m.entries[id] = reg.base + uintptr(off)
	}
	m.log.Debug("jit: finalized", "functions", len(offsets), "bytes", len(image), "base", fmt.Sprintf("%#x", reg.base))
	return nil
}

// GetFinalizedFunction returns the entry address of a finalized function.
func (m *Module) GetFinalizedFunction(id module.FuncID) (uintptr, error) {
	decl, ok := m.decls.Get(id)
	if !ok {
		return 0, module.Wrap("lookup", id.String(), module.ErrUnknownFunction)
	}
	if m.region == nil || m.closed {
		return 0, module.Wrap("lookup", decl.Name, module.ErrNotFinalized)
	}
	entry, ok := m.entries[id]
	if !ok {
		return 0, module.Wrap("lookup", decl.Name, module.ErrUndefined)
	}
	return entry, nil
}

// Code returns the machine code generated for id.
func (m *Module) Code(id module.FuncID) ([]byte, bool) {
	prog, ok := m.code[id]
	if !ok {
		return nil, false
	}
	return prog.Bytes(), true
}

// Close unmaps the executable region. Functions obtained from the module
// must not be called afterwards.
func (m *Module) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.entries = nil
	if m.region == nil {
		return nil
	}
	reg := m.region
	m.region = nil
	if err := reg.release(); err != nil {
		return module.Wrap("close", "", err)
	}
	return nil
}
