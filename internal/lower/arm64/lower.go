// Package arm64 lowers IR functions to AArch64 machine code using AAPCS64.
package arm64

import (
	"fmt"

	"github.com/tinyrange/jitadd/internal/asm"
	"github.com/tinyrange/jitadd/internal/asm/arm64"
	"github.com/tinyrange/jitadd/internal/ir"
	"github.com/tinyrange/jitadd/internal/lower"
	"github.com/tinyrange/jitadd/internal/target"
)

var paramRegisters = []asm.Variable{arm64.X0, arm64.X1, arm64.X2, arm64.X3, arm64.X4, arm64.X5, arm64.X6, arm64.X7}

// X16-X18 are left alone: IP0/IP1 may be clobbered by veneers and X18 is the
// platform register.
var allocOrder = []asm.Variable{
	arm64.X0, arm64.X1, arm64.X2, arm64.X3, arm64.X4, arm64.X5, arm64.X6, arm64.X7,
	arm64.X8, arm64.X9, arm64.X10, arm64.X11, arm64.X12, arm64.X13, arm64.X14, arm64.X15,
}

type backend struct{}

func init() {
	lower.RegisterBackend(target.ArchitectureARM64, backend{})
}

func (backend) Lower(fn *ir.Function) (asm.Program, error) {
	frag, err := Compile(fn)
	if err != nil {
		return asm.Program{}, err
	}
	return arm64.EmitProgram(frag)
}

type compiler struct {
	fn        *ir.Function
	alloc     *lower.Allocator
	fragments asm.Group
}

// Compile lowers fn into an instruction fragment. Operands are read before
// the destination is written in every emitted instruction, so dead operand
// registers are released before the result is allocated.
func Compile(fn *ir.Function) (asm.Fragment, error) {
	blk, err := lower.SingleBlock(fn)
	if err != nil {
		return nil, err
	}
	params := fn.BlockParams(blk)
	if len(params) > len(paramRegisters) {
		return nil, fmt.Errorf("%d parameters exceed the %d register arguments", len(params), len(paramRegisters))
	}

	c := &compiler{fn: fn, alloc: lower.NewAllocator(fn, blk, allocOrder)}
	for i, p := range params {
		if err := lower.RequireI64(fn, p); err != nil {
			return nil, err
		}
		if err := c.alloc.Pin(p, paramRegisters[i]); err != nil {
			return nil, err
		}
		c.alloc.ReleaseUnused(p)
	}

	for idx, inst := range fn.BlockInsts(blk) {
		if err := c.compileInst(idx, fn.InstData(inst)); err != nil {
			return nil, fmt.Errorf("%s: %w", inst, err)
		}
	}
	return c.fragments, nil
}

func (c *compiler) emit(frags ...asm.Fragment) {
	c.fragments = append(c.fragments, frags...)
}

func (c *compiler) operands(idx int, vals ...ir.Value) ([]asm.Variable, error) {
	regs := make([]asm.Variable, len(vals))
	for i, v := range vals {
		reg, err := c.alloc.Reg(v)
		if err != nil {
			return nil, err
		}
		regs[i] = reg
	}
	c.alloc.Release(idx, vals...)
	return regs, nil
}

func (c *compiler) result(v ir.Value) (arm64.Reg, error) {
	reg, err := c.alloc.Alloc(v)
	if err != nil {
		return arm64.Reg{}, err
	}
	c.alloc.ReleaseUnused(v)
	return arm64.Reg64(reg), nil
}

func (c *compiler) compileInst(idx int, data ir.InstData) error {
	switch data.Opcode {
	case ir.OpLoad:
		if err := lower.RequireI64(c.fn, data.Result, data.Args[0]); err != nil {
			return err
		}
		regs, err := c.operands(idx, data.Args[0])
		if err != nil {
			return err
		}
		dst, err := c.result(data.Result)
		if err != nil {
			return err
		}
		c.emit(arm64.MovFromMemory64(dst, arm64.Mem(arm64.Reg64(regs[0])).WithDisp(data.Offset)))
	case ir.OpIconst:
		if err := lower.RequireI64(c.fn, data.Result); err != nil {
			return err
		}
		dst, err := c.result(data.Result)
		if err != nil {
			return err
		}
		c.emit(arm64.MovImmediate(dst, data.Imm))
	case ir.OpIadd:
		if err := lower.RequireI64(c.fn, data.Result, data.Args[0], data.Args[1]); err != nil {
			return err
		}
		regs, err := c.operands(idx, data.Args...)
		if err != nil {
			return err
		}
		dst, err := c.result(data.Result)
		if err != nil {
			return err
		}
		c.emit(arm64.AddRegRegReg(dst, arm64.Reg64(regs[0]), arm64.Reg64(regs[1])))
	case ir.OpReturn:
		return c.compileReturn(data)
	default:
		return fmt.Errorf("unsupported opcode %s", data.Opcode)
	}
	return nil
}

func (c *compiler) compileReturn(data ir.InstData) error {
	switch len(data.Args) {
	case 0:
	case 1:
		if err := lower.RequireI64(c.fn, data.Args[0]); err != nil {
			return err
		}
		reg, err := c.alloc.Reg(data.Args[0])
		if err != nil {
			return err
		}
		if reg != arm64.X0 {
			c.emit(arm64.MovReg(arm64.Reg64(arm64.X0), arm64.Reg64(reg)))
		}
	default:
		return fmt.Errorf("%d return values; at most one is supported", len(data.Args))
	}
	c.emit(arm64.Ret())
	return nil
}
