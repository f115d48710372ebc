package ir

import "fmt"

type Value uint32

type Block uint32

type Inst uint32

// Variable identifies a typed local slot used while building. Variables do
// not survive into the finished Function; reads resolve to Values.
type Variable uint32

const ValueInvalid = Value(^uint32(0))

func (v Value) String() string {
	if v == ValueInvalid {
		return "v?"
	}
	return fmt.Sprintf("v%d", uint32(v))
}

func (b Block) String() string { return fmt.Sprintf("block%d", uint32(b)) }

func (i Inst) String() string { return fmt.Sprintf("inst%d", uint32(i)) }

func (v Variable) String() string { return fmt.Sprintf("var%d", uint32(v)) }

type Opcode uint8

const (
	OpInvalid Opcode = iota
	OpLoad
	OpIconst
	OpIadd
	OpReturn
)

func (op Opcode) String() string {
	switch op {
	case OpLoad:
		return "load"
	case OpIconst:
		return "iconst"
	case OpIadd:
		return "iadd"
	case OpReturn:
		return "return"
	default:
		return "invalid"
	}
}

func (op Opcode) IsTerminator() bool { return op == OpReturn }

// InstData is the payload of one instruction. Type is the controlling type
// (the loaded type, the constant type, or the add width); it is unused by
// return.
type InstData struct {
	Opcode Opcode
	Type   Type
	Args   []Value
	Imm    int64
	Offset int32
	Flags  MemFlags
	Result Value
}

type ValueKind uint8

const (
	ValueKindParam ValueKind = iota
	ValueKindInst
	// ValueKindUndef is produced when a variable is read without a reaching
	// definition. The verifier rejects any use of it.
	ValueKindUndef
)

type ValueData struct {
	Kind  ValueKind
	Type  Type
	Block Block
	Index int
	Inst  Inst
	Var   Variable
	// Declared is false for undef values produced by reading a variable that
	// was never declared.
	Declared bool
}

// VarDef records one variable definition made while building, so the
// verifier can check it against the declaration.
type VarDef struct {
	Var      Variable
	Declared Type
	Value    Value
}

type blockData struct {
	params []Value
	insts  []Inst
	sealed bool
}

// Function is a single function in SSA form: an ordered list of blocks, each
// with typed parameters and a straight-line instruction list.
type Function struct {
	Name      string
	Signature Signature

	blocks  []blockData
	insts   []InstData
	values  []ValueData
	varDefs []VarDef
}

func NewFunction(name string, sig Signature) *Function {
	return &Function{Name: name, Signature: sig}
}

func (f *Function) CreateBlock() Block {
	f.blocks = append(f.blocks, blockData{})
	return Block(len(f.blocks) - 1)
}

func (f *Function) Blocks() []Block {
	out := make([]Block, len(f.blocks))
	for i := range f.blocks {
		out[i] = Block(i)
	}
	return out
}

// EntryBlock returns the first block in layout order.
func (f *Function) EntryBlock() (Block, bool) {
	if len(f.blocks) == 0 {
		return 0, false
	}
	return 0, true
}

func (f *Function) validBlock(b Block) bool { return int(b) < len(f.blocks) }

func (f *Function) AppendBlockParam(b Block, ty Type) Value {
	if !f.validBlock(b) {
		panic(fmt.Sprintf("ir: %s does not exist", b))
	}
	v := f.newValue(ValueData{
		Kind:  ValueKindParam,
		Type:  ty,
		Block: b,
		Index: len(f.blocks[b].params),
	})
	f.blocks[b].params = append(f.blocks[b].params, v)
	return v
}

func (f *Function) BlockParams(b Block) []Value {
	if !f.validBlock(b) {
		return nil
	}
	return append([]Value(nil), f.blocks[b].params...)
}

func (f *Function) BlockInsts(b Block) []Inst {
	if !f.validBlock(b) {
		return nil
	}
	return append([]Inst(nil), f.blocks[b].insts...)
}

func (f *Function) MarkSealed(b Block) {
	if f.validBlock(b) {
		f.blocks[b].sealed = true
	}
}

func (f *Function) IsSealed(b Block) bool {
	return f.validBlock(b) && f.blocks[b].sealed
}

// AppendInst appends an instruction to b. When the opcode produces a result a
// new value of the controlling type is allocated and returned; otherwise the
// returned value is ValueInvalid.
func (f *Function) AppendInst(b Block, data InstData) (Inst, Value) {
	if !f.validBlock(b) {
		panic(fmt.Sprintf("ir: %s does not exist", b))
	}
	inst := Inst(len(f.insts))
	data.Result = ValueInvalid
	data.Args = append([]Value(nil), data.Args...)
	if data.Opcode != OpReturn {
		data.Result = f.newValue(ValueData{
			Kind:  ValueKindInst,
			Type:  data.Type,
			Block: b,
			Inst:  inst,
		})
	}
	f.insts = append(f.insts, data)
	f.blocks[b].insts = append(f.blocks[b].insts, inst)
	return inst, data.Result
}

func (f *Function) InstData(i Inst) InstData {
	if int(i) >= len(f.insts) {
		return InstData{Opcode: OpInvalid, Result: ValueInvalid}
	}
	d := f.insts[i]
	d.Args = append([]Value(nil), d.Args...)
	return d
}

// MakeUndef allocates a placeholder for a variable read with no reaching
// definition.
func (f *Function) MakeUndef(v Variable, ty Type, declared bool) Value {
	return f.newValue(ValueData{Kind: ValueKindUndef, Type: ty, Var: v, Declared: declared})
}

func (f *Function) ValueData(v Value) (ValueData, bool) {
	if int(v) >= len(f.values) {
		return ValueData{}, false
	}
	return f.values[v], true
}

func (f *Function) ValueType(v Value) Type {
	d, ok := f.ValueData(v)
	if !ok {
		return TypeInvalid
	}
	return d.Type
}

func (f *Function) NumValues() int { return len(f.values) }

func (f *Function) RecordVarDef(def VarDef) {
	f.varDefs = append(f.varDefs, def)
}

func (f *Function) VarDefs() []VarDef {
	return append([]VarDef(nil), f.varDefs...)
}

func (f *Function) newValue(d ValueData) Value {
	f.values = append(f.values, d)
	return Value(len(f.values) - 1)
}
