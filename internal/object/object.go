// Package object compiles IR functions into a relocatable ELF object that an
// external linker can turn into an executable.
package object

import (
	"log/slog"

	"github.com/tinyrange/jitadd/internal/asm"
	"github.com/tinyrange/jitadd/internal/ir"
	"github.com/tinyrange/jitadd/internal/module"
	"github.com/tinyrange/jitadd/internal/target"
)

const codeAlignment = 16

type Option func(*Module)

func WithLogger(log *slog.Logger) Option {
	return func(m *Module) {
		if log != nil {
			m.log = log
		}
	}
}

// Module collects function definitions for one object file. Unlike the JIT
// module it accepts any supported target, so objects can be produced for
// another architecture.
type Module struct {
	desc  target.Descriptor
	name  string
	decls module.Declarations
	log   *slog.Logger

	code     map[module.FuncID]asm.Program
	finished bool
}

// New starts an object named name. The name is recorded as the object's
// source file symbol.
func New(desc target.Descriptor, name string, opts ...Option) (*Module, error) {
	if desc.ObjectFormat != target.ObjectFormatELF {
		return nil, module.Errorf("new", name, "unsupported object format %q", desc.ObjectFormat)
	}
	if _, err := machineFor(desc.Arch); err != nil {
		return nil, module.Wrap("new", name, err)
	}
	m := &Module{
		desc: desc,
		name: name,
		log:  slog.Default(),
		code: make(map[module.FuncID]asm.Program),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Module) Target() target.Descriptor { return m.desc }

func (m *Module) DeclareFunction(name string, linkage module.Linkage, sig ir.Signature) (module.FuncID, error) {
	if m.finished {
		return 0, module.Wrap("declare", name, module.ErrFinalized)
	}
	return m.decls.Declare(name, linkage, sig)
}

func (m *Module) DefineFunction(id module.FuncID, fn *ir.Function) error {
	if m.finished {
		return module.Wrap("define", id.String(), module.ErrFinalized)
	}
	decl, prog, err := m.decls.Lower(m.desc, id, fn)
	if err != nil {
		return err
	}
	m.code[id] = prog
	m.log.Debug("object: defined function", "name", decl.Name, "bytes", prog.Len())
	return nil
}

// Finish lays out the text section and symbol table. Imports become undefined
// symbols for the linker to resolve; a definable function without a body is
// an error.
func (m *Module) Finish() (*Product, error) {
	if m.finished {
		return nil, module.Wrap("finalize", m.name, module.ErrFinalized)
	}
	if undefined := m.decls.Undefined(); len(undefined) > 0 {
		return nil, module.Wrap("finalize", undefined[0], module.ErrUndefined)
	}
	m.finished = true

	p := &Product{Name: m.name, Target: m.desc}
	for id, decl := range m.decls.All() {
		sym := Symbol{Name: decl.Name, Linkage: decl.Linkage}
		if prog, ok := m.code[module.FuncID(id)]; ok {
			for len(p.Text)%codeAlignment != 0 {
				p.Text = append(p.Text, 0)
			}
			sym.Defined = true
			sym.Offset = uint64(len(p.Text))
			sym.Size = uint64(prog.Len())
			p.Text = append(p.Text, prog.Bytes()...)
		}
		p.Symbols = append(p.Symbols, sym)
	}
	m.log.Debug("object: finished", "name", m.name, "symbols", len(p.Symbols), "text_bytes", len(p.Text))
	return p, nil
}

// Symbol is a function symbol of a finished object.
type Symbol struct {
	Name    string
	Linkage module.Linkage
	Defined bool
	Offset  uint64
	Size    uint64
}

// Product is a finished object ready to be serialized.
type Product struct {
	Name    string
	Target  target.Descriptor
	Text    []byte
	Symbols []Symbol
}

// Lookup returns the symbol called name.
func (p *Product) Lookup(name string) (Symbol, bool) {
	for _, sym := range p.Symbols {
		if sym.Name == name {
			return sym, true
		}
	}
	return Symbol{}, false
}
