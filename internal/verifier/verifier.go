// Package verifier checks structural and type soundness of IR before any
// machine code is produced.
package verifier

import (
	"fmt"

	"github.com/tinyrange/jitadd/internal/ir"
	"github.com/tinyrange/jitadd/internal/target"
)

// Error describes the first violation found.
type Error struct {
	Location string
	Message  string
}

func (e *Error) Error() string {
	if e.Location == "" {
		return "verifier: " + e.Message
	}
	return fmt.Sprintf("verifier: %s: %s", e.Location, e.Message)
}

type verifier struct {
	fn    *ir.Function
	flags target.Flags
	ptr   ir.Type
	// position of each defined value inside its block; params use -1
	defined map[ir.Value]int
}

// Verify checks fn against the codegen flags and pointer width of desc and
// returns nil or a *Error. It does not modify fn and may be called any number
// of times.
func Verify(fn *ir.Function, desc target.Descriptor) error {
	if fn == nil {
		return &Error{Message: "function is nil"}
	}
	v := &verifier{fn: fn, flags: desc.Flags, ptr: ir.PointerType(desc)}
	return v.run()
}

func errorf(loc fmt.Stringer, format string, args ...any) error {
	where := ""
	if loc != nil {
		where = loc.String()
	}
	return &Error{Location: where, Message: fmt.Sprintf(format, args...)}
}

func (v *verifier) run() error {
	entry, ok := v.fn.EntryBlock()
	if !ok {
		return &Error{Message: "function has no blocks"}
	}
	if err := v.verifyVarDefs(); err != nil {
		return err
	}
	if err := v.verifyEntryParams(entry); err != nil {
		return err
	}
	for _, blk := range v.fn.Blocks() {
		if err := v.verifyBlock(blk); err != nil {
			return err
		}
	}
	return nil
}

func (v *verifier) verifyVarDefs() error {
	for _, def := range v.fn.VarDefs() {
		if def.Declared == ir.TypeInvalid {
			return &Error{Message: fmt.Sprintf("definition of undeclared variable %s", def.Var)}
		}
		if got := v.fn.ValueType(def.Value); got != def.Declared {
			return &Error{Message: fmt.Sprintf("%s declared %s but defined with %s value %s", def.Var, def.Declared, got, def.Value)}
		}
	}
	return nil
}

func (v *verifier) verifyEntryParams(entry ir.Block) error {
	params := v.fn.BlockParams(entry)
	sig := v.fn.Signature.Params
	if len(params) != len(sig) {
		return errorf(entry, "entry block has %d parameters, signature has %d", len(params), len(sig))
	}
	for i, p := range params {
		if got, want := v.fn.ValueType(p), sig[i].Type; got != want {
			return errorf(entry, "parameter %d is %s, signature expects %s", i, got, want)
		}
	}
	return nil
}

func (v *verifier) verifyBlock(blk ir.Block) error {
	if !v.fn.IsSealed(blk) {
		return errorf(blk, "block is not sealed")
	}
	insts := v.fn.BlockInsts(blk)
	if len(insts) == 0 {
		return errorf(blk, "block is empty")
	}

	v.defined = make(map[ir.Value]int)
	for _, p := range v.fn.BlockParams(blk) {
		v.defined[p] = -1
	}

	for pos, inst := range insts {
		data := v.fn.InstData(inst)
		last := pos == len(insts)-1
		if data.Opcode.IsTerminator() && !last {
			return errorf(inst, "terminator %s is not the last instruction of %s", data.Opcode, blk)
		}
		if !data.Opcode.IsTerminator() && last {
			return errorf(inst, "%s does not end with a terminator", blk)
		}
		for _, arg := range data.Args {
			if err := v.verifyOperand(inst, arg); err != nil {
				return err
			}
		}
		if err := v.verifyInst(inst, data); err != nil {
			return err
		}
		if data.Result != ir.ValueInvalid {
			v.defined[data.Result] = pos
		}
	}
	return nil
}

func (v *verifier) verifyOperand(inst ir.Inst, arg ir.Value) error {
	data, ok := v.fn.ValueData(arg)
	if !ok {
		return errorf(inst, "operand %s does not exist", arg)
	}
	switch data.Kind {
	case ir.ValueKindUndef:
		if !data.Declared {
			return errorf(inst, "use of undeclared variable %s", data.Var)
		}
		return errorf(inst, "use of variable %s before definition", data.Var)
	case ir.ValueKindParam, ir.ValueKindInst:
		if _, ok := v.defined[arg]; !ok {
			return errorf(inst, "operand %s used before its definition", arg)
		}
	}
	return nil
}

func (v *verifier) verifyInst(inst ir.Inst, d ir.InstData) error {
	switch d.Opcode {
	case ir.OpLoad:
		if len(d.Args) != 1 {
			return errorf(inst, "load takes 1 operand, got %d", len(d.Args))
		}
		if !d.Type.IsInt() {
			return errorf(inst, "load of invalid type")
		}
		addrType := v.fn.ValueType(d.Args[0])
		if addrType != v.ptr {
			return errorf(inst, "load address %s is %s, want pointer-width %s", d.Args[0], addrType, v.ptr)
		}
		if !v.flags.AllowUntrustedLoads && !d.Flags.Trusted() {
			return errorf(inst, "load must be notrap aligned (flags %q)", d.Flags.String())
		}
	case ir.OpIconst:
		if len(d.Args) != 0 {
			return errorf(inst, "iconst takes no operands")
		}
		if !d.Type.IsInt() {
			return errorf(inst, "iconst of invalid type")
		}
		if bits := d.Type.Bits(); bits < 64 {
			lo, hi := int64(-1)<<(bits-1), int64(1)<<(bits-1)-1
			if d.Imm < lo || d.Imm > hi {
				return errorf(inst, "immediate %d does not fit %s", d.Imm, d.Type)
			}
		}
	case ir.OpIadd:
		if len(d.Args) != 2 {
			return errorf(inst, "iadd takes 2 operands, got %d", len(d.Args))
		}
		lhs, rhs := v.fn.ValueType(d.Args[0]), v.fn.ValueType(d.Args[1])
		if !lhs.IsInt() || lhs != rhs {
			return errorf(inst, "iadd operands %s and %s have mismatched types %s and %s", d.Args[0], d.Args[1], lhs, rhs)
		}
		if d.Type != lhs {
			return errorf(inst, "iadd result type %s does not match operand type %s", d.Type, lhs)
		}
	case ir.OpReturn:
		want := v.fn.Signature.Returns
		if len(d.Args) != len(want) {
			return errorf(inst, "return has %d values, signature returns %d", len(d.Args), len(want))
		}
		for i, arg := range d.Args {
			if got := v.fn.ValueType(arg); got != want[i].Type {
				return errorf(inst, "return value %d is %s, signature expects %s", i, got, want[i].Type)
			}
		}
	default:
		return errorf(inst, "unknown opcode %d", d.Opcode)
	}
	return nil
}
