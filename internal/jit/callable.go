package jit

import (
	"fmt"

	"github.com/ebitengine/purego"

	"github.com/tinyrange/jitadd/internal/ir"
	"github.com/tinyrange/jitadd/internal/module"
)

// PtrToI64 is the Go view of a compiled function with signature (ptr) -> i64.
type PtrToI64 func(*int64) int64

// BindPtrToI64 turns the finalized function id into a Go function. It is the
// only place a raw code address becomes callable, and it refuses any
// declaration whose signature is not exactly one pointer parameter and one
// i64 result in the host calling convention.
func BindPtrToI64(m *Module, id module.FuncID) (PtrToI64, error) {
	decl, ok := m.decls.Get(id)
	if !ok {
		return nil, module.Wrap("lookup", id.String(), module.ErrUnknownFunction)
	}

	want := ir.NewSignature(m.desc.CallConv)
	want.Params = []ir.AbiParam{ir.NewAbiParam(ir.PointerType(m.desc))}
	want.Returns = []ir.AbiParam{ir.NewAbiParam(ir.I64)}
	if !decl.Signature.Equal(want) {
		return nil, module.Wrap("lookup", decl.Name,
			fmt.Errorf("%w: cannot call %s as %s", module.ErrSignatureMismatch, decl.Signature, want))
	}

	entry, err := m.GetFinalizedFunction(id)
	if err != nil {
		return nil, err
	}

	var fn func(*int64) int64
	purego.RegisterFunc(&fn, entry)
	return fn, nil
}
