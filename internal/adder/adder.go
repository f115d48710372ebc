// Package adder defines the single function the pipeline compiles: it loads a
// 64-bit integer through its pointer argument and returns that value plus a
// constant embedded in the generated code.
package adder

import (
	"github.com/tinyrange/jitadd/internal/ir"
	"github.com/tinyrange/jitadd/internal/target"
)

const (
	varX ir.Variable = iota
	varY
	varA
)

// Function builds `fn(p *int64) int64 { return *p + Constant }`.
//
// Constant is an immediate in the generated code rather than a second
// argument, which keeps the body a single branch-free block.
type Function struct {
	Symbol   string
	Constant int64
}

var _ ir.Definition = Function{}

func (f Function) Name() string { return f.Symbol }

// Signature is (pointer) -> i64 in the target's calling convention.
func (f Function) Signature(desc target.Descriptor) ir.Signature {
	sig := ir.NewSignature(desc.CallConv)
	sig.Params = append(sig.Params, ir.NewAbiParam(ir.PointerType(desc)))
	sig.Returns = append(sig.Returns, ir.NewAbiParam(ir.I64))
	return sig
}

func (f Function) Define(b *ir.FunctionBuilder) {
	b.DeclareVar(varX, ir.I64)
	b.DeclareVar(varY, ir.I64)
	b.DeclareVar(varA, ir.I64)

	block0 := b.CreateBlock()
	b.AppendBlockParamsForFunctionParams(block0)
	b.SwitchToBlock(block0)
	b.SealBlock(block0)

	ptr := b.BlockParams(block0)[0]
	b.DefVar(varX, b.Ins().Load(ir.I64, ir.TrustedMemFlags(), ptr, 0))

	b.DefVar(varY, b.Ins().Iconst(ir.I64, f.Constant))

	sum := b.Ins().Iadd(b.UseVar(varX), b.UseVar(varY))
	b.DefVar(varA, sum)
	b.Ins().Return(b.UseVar(varA))
}

