package ir

import (
	"fmt"

	"github.com/tinyrange/jitadd/internal/target"
)

// Definition describes how to build one function. Pipelines consume any
// Definition, so new function shapes do not touch the verifier or backends.
type Definition interface {
	Name() string
	Signature(desc target.Descriptor) Signature
	Define(b *FunctionBuilder)
}

// Build runs def through a fresh builder and returns the finished function.
func Build(def Definition, desc target.Descriptor) *Function {
	b := NewFunctionBuilder(NewFunction(def.Name(), def.Signature(desc)))
	def.Define(b)
	return b.Finalize()
}

// FunctionBuilder constructs a Function in SSA form from reads and writes of
// typed variables. It never reports errors itself: misuse such as reading an
// undeclared variable produces IR the verifier rejects.
type FunctionBuilder struct {
	fn *Function

	vars    map[Variable]Type
	defs    map[Block]map[Variable]Value
	current Block
	hasCur  bool
}

func NewFunctionBuilder(fn *Function) *FunctionBuilder {
	return &FunctionBuilder{
		fn:   fn,
		vars: make(map[Variable]Type),
		defs: make(map[Block]map[Variable]Value),
	}
}

func (b *FunctionBuilder) Func() *Function { return b.fn }

func (b *FunctionBuilder) DeclareVar(v Variable, ty Type) {
	if _, exists := b.vars[v]; exists {
		panic(fmt.Sprintf("ir: %s declared twice", v))
	}
	b.vars[v] = ty
}

func (b *FunctionBuilder) DefVar(v Variable, val Value) {
	blk := b.currentBlock()
	declared := b.vars[v]
	b.fn.RecordVarDef(VarDef{Var: v, Declared: declared, Value: val})

	defs, ok := b.defs[blk]
	if !ok {
		defs = make(map[Variable]Value)
		b.defs[blk] = defs
	}
	defs[v] = val
}

// UseVar returns the value of v reaching the current position. Blocks have no
// predecessors (there are no branch instructions), so a read without a local
// definition yields an undef placeholder whether or not the block is sealed.
func (b *FunctionBuilder) UseVar(v Variable) Value {
	blk := b.currentBlock()
	if val, ok := b.defs[blk][v]; ok {
		return val
	}
	ty, declared := b.vars[v]
	return b.fn.MakeUndef(v, ty, declared)
}

func (b *FunctionBuilder) CreateBlock() Block {
	return b.fn.CreateBlock()
}

// AppendBlockParamsForFunctionParams gives blk one parameter per signature
// parameter, in order.
func (b *FunctionBuilder) AppendBlockParamsForFunctionParams(blk Block) {
	for _, p := range b.fn.Signature.Params {
		b.fn.AppendBlockParam(blk, p.Type)
	}
}

func (b *FunctionBuilder) BlockParams(blk Block) []Value {
	return b.fn.BlockParams(blk)
}

func (b *FunctionBuilder) SwitchToBlock(blk Block) {
	if !b.fn.validBlock(blk) {
		panic(fmt.Sprintf("ir: %s does not exist", blk))
	}
	b.current = blk
	b.hasCur = true
}

// SealBlock declares the predecessor set of blk final.
func (b *FunctionBuilder) SealBlock(blk Block) {
	b.fn.MarkSealed(blk)
}

// Finalize ends construction. The builder must not be used afterwards.
func (b *FunctionBuilder) Finalize() *Function {
	fn := b.fn
	b.fn = nil
	b.defs = nil
	b.hasCur = false
	return fn
}

func (b *FunctionBuilder) Ins() InstBuilder {
	return InstBuilder{b: b}
}

func (b *FunctionBuilder) currentBlock() Block {
	if b.fn == nil {
		panic("ir: builder used after Finalize")
	}
	if !b.hasCur {
		panic("ir: no current block; call SwitchToBlock first")
	}
	return b.current
}

// InstBuilder appends instructions at the end of the current block.
type InstBuilder struct {
	b *FunctionBuilder
}

func (i InstBuilder) append(data InstData) (Inst, Value) {
	blk := i.b.currentBlock()
	return i.b.fn.AppendInst(blk, data)
}

// Load reads a value of type ty from addr+offset.
func (i InstBuilder) Load(ty Type, flags MemFlags, addr Value, offset int32) Value {
	_, v := i.append(InstData{Opcode: OpLoad, Type: ty, Args: []Value{addr}, Offset: offset, Flags: flags})
	return v
}

func (i InstBuilder) Iconst(ty Type, imm int64) Value {
	_, v := i.append(InstData{Opcode: OpIconst, Type: ty, Imm: imm})
	return v
}

// Iadd is a wrapping integer add; the result has the type of x.
func (i InstBuilder) Iadd(x, y Value) Value {
	_, v := i.append(InstData{Opcode: OpIadd, Type: i.b.fn.ValueType(x), Args: []Value{x, y}})
	return v
}

func (i InstBuilder) Return(vals ...Value) Inst {
	inst, _ := i.append(InstData{Opcode: OpReturn, Args: vals})
	return inst
}
