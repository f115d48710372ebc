// Package module holds the declaration bookkeeping shared by the JIT and
// object backends: symbol names, linkage, signatures and which functions
// have bodies.
package module

import (
	"errors"
	"fmt"

	"github.com/tinyrange/jitadd/internal/asm"
	"github.com/tinyrange/jitadd/internal/ir"
	"github.com/tinyrange/jitadd/internal/lower"
	_ "github.com/tinyrange/jitadd/internal/lower/amd64"
	_ "github.com/tinyrange/jitadd/internal/lower/arm64"
	"github.com/tinyrange/jitadd/internal/target"
)

type Linkage uint8

const (
	// Import refers to a function defined elsewhere.
	Import Linkage = iota
	// Local is defined here and invisible outside the module.
	Local
	// Export is defined here and visible to other modules and the linker.
	Export
)

func (l Linkage) String() string {
	switch l {
	case Import:
		return "import"
	case Local:
		return "local"
	case Export:
		return "export"
	default:
		return fmt.Sprintf("linkage(%d)", uint8(l))
	}
}

// IsDefinable reports whether a function with this linkage may be given a body.
func (l Linkage) IsDefinable() bool { return l == Local || l == Export }

// merge combines the linkage of two declarations of the same name.
func (l Linkage) merge(other Linkage) (Linkage, bool) {
	switch {
	case l == other:
		return l, true
	case l == Import:
		return other, true
	case other == Import:
		return l, true
	default:
		return l, false
	}
}

// FuncID identifies a declared function within one module.
type FuncID uint32

func (id FuncID) String() string { return fmt.Sprintf("funcid%d", uint32(id)) }

var (
	ErrIncompatibleDeclaration = errors.New("incompatible redeclaration")
	ErrDuplicateDefinition     = errors.New("duplicate definition")
	ErrSignatureMismatch       = errors.New("signature does not match declaration")
	ErrNotDefinable            = errors.New("imported function cannot be defined")
	ErrUnknownFunction         = errors.New("unknown function")
	ErrUndefined               = errors.New("declared but not defined")
	ErrNotFinalized            = errors.New("definitions not finalized")
	ErrFinalized               = errors.New("module already finalized")
)

// Error is returned by every module operation. Op is one of declare, define,
// finalize, lookup or emit.
type Error struct {
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("module: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("module: %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op, name string, err error) *Error {
	return &Error{Op: op, Name: name, Err: err}
}

// Declaration is one entry of the function table.
type Declaration struct {
	Name      string
	Linkage   Linkage
	Signature ir.Signature
	Defined   bool
}

// Declarations is the function table of a module. The zero value is ready
// to use.
type Declarations struct {
	funcs []Declaration
	names map[string]FuncID
}

// Declare adds name to the table or merges with an existing declaration of
// the same name. Redeclaring with a different signature, or with Local and
// Export linkage, fails.
func (d *Declarations) Declare(name string, linkage Linkage, sig ir.Signature) (FuncID, error) {
	if name == "" {
		return 0, newError("declare", name, fmt.Errorf("empty function name"))
	}
	if id, ok := d.names[name]; ok {
		existing := &d.funcs[id]
		if !existing.Signature.Equal(sig) {
			return 0, newError("declare", name, fmt.Errorf("%w: signature %s, previously %s",
				ErrIncompatibleDeclaration, sig, existing.Signature))
		}
		merged, ok := existing.Linkage.merge(linkage)
		if !ok {
			return 0, newError("declare", name, fmt.Errorf("%w: linkage %s, previously %s",
				ErrIncompatibleDeclaration, linkage, existing.Linkage))
		}
		existing.Linkage = merged
		return id, nil
	}

	if d.names == nil {
		d.names = make(map[string]FuncID)
	}
	id := FuncID(len(d.funcs))
	d.funcs = append(d.funcs, Declaration{Name: name, Linkage: linkage, Signature: sig})
	d.names[name] = id
	return id, nil
}

// Get returns the declaration for id.
func (d *Declarations) Get(id FuncID) (Declaration, bool) {
	if int(id) >= len(d.funcs) {
		return Declaration{}, false
	}
	return d.funcs[id], true
}

// Lookup finds a declaration by symbol name.
func (d *Declarations) Lookup(name string) (FuncID, bool) {
	id, ok := d.names[name]
	return id, ok
}

// All returns the declarations in declaration order.
func (d *Declarations) All() []Declaration {
	return append([]Declaration(nil), d.funcs...)
}

// Define marks id as having a body and returns its declaration. It checks
// the body's signature against the declaration and rejects second
// definitions.
func (d *Declarations) Define(id FuncID, fn *ir.Function) (Declaration, error) {
	decl, err := d.checkDefine(id, fn)
	if err != nil {
		return Declaration{}, err
	}
	d.funcs[id].Defined = true
	decl.Defined = true
	return decl, nil
}

// Lower checks fn against id like Define, lowers it for desc and only then
// marks id as defined. A body that fails to lower leaves id undefined.
func (d *Declarations) Lower(desc target.Descriptor, id FuncID, fn *ir.Function) (Declaration, asm.Program, error) {
	decl, err := d.checkDefine(id, fn)
	if err != nil {
		return Declaration{}, asm.Program{}, err
	}
	prog, err := Compile(desc, decl.Name, fn)
	if err != nil {
		return Declaration{}, asm.Program{}, err
	}
	d.funcs[id].Defined = true
	decl.Defined = true
	return decl, prog, nil
}

func (d *Declarations) checkDefine(id FuncID, fn *ir.Function) (Declaration, error) {
	decl, ok := d.Get(id)
	if !ok {
		return Declaration{}, newError("define", id.String(), ErrUnknownFunction)
	}
	if fn == nil {
		return Declaration{}, newError("define", decl.Name, fmt.Errorf("function must be non-nil"))
	}
	if !decl.Linkage.IsDefinable() {
		return Declaration{}, newError("define", decl.Name, ErrNotDefinable)
	}
	if decl.Defined {
		return Declaration{}, newError("define", decl.Name, ErrDuplicateDefinition)
	}
	if !decl.Signature.Equal(fn.Signature) {
		return Declaration{}, newError("define", decl.Name, fmt.Errorf("%w: body %s, declared %s",
			ErrSignatureMismatch, fn.Signature, decl.Signature))
	}
	return decl, nil
}

// Undefined lists definable declarations that never received a body.
func (d *Declarations) Undefined() []string {
	var out []string
	for _, decl := range d.funcs {
		if decl.Linkage.IsDefinable() && !decl.Defined {
			out = append(out, decl.Name)
		}
	}
	return out
}

// Compile lowers fn for desc. It wraps lowering failures as a define error
// for name.
func Compile(desc target.Descriptor, name string, fn *ir.Function) (asm.Program, error) {
	prog, err := lower.Function(desc, fn)
	if err != nil {
		return asm.Program{}, newError("define", name, err)
	}
	return prog, nil
}

// Errorf builds a module error for backends that sit on top of Declarations.
func Errorf(op, name, format string, args ...any) *Error {
	return newError(op, name, fmt.Errorf(format, args...))
}

// Wrap builds a module error around err.
func Wrap(op, name string, err error) *Error {
	return newError(op, name, err)
}
