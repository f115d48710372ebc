// Package amd64 lowers IR functions to x86-64 machine code using the System V
// calling convention.
package amd64

import (
	"fmt"

	"github.com/tinyrange/jitadd/internal/asm"
	"github.com/tinyrange/jitadd/internal/asm/amd64"
	"github.com/tinyrange/jitadd/internal/ir"
	"github.com/tinyrange/jitadd/internal/lower"
	"github.com/tinyrange/jitadd/internal/target"
)

var paramRegisters = []asm.Variable{amd64.RDI, amd64.RSI, amd64.RDX, amd64.RCX, amd64.R8, amd64.R9}

// Caller-saved registers only, so no prologue is ever needed.
var allocOrder = []asm.Variable{
	amd64.RAX,
	amd64.RCX,
	amd64.RDX,
	amd64.RSI,
	amd64.RDI,
	amd64.R8,
	amd64.R9,
	amd64.R10,
	amd64.R11,
}

type backend struct{}

func init() {
	lower.RegisterBackend(target.ArchitectureX86_64, backend{})
}

func (backend) Lower(fn *ir.Function) (asm.Program, error) {
	frag, err := Compile(fn)
	if err != nil {
		return asm.Program{}, err
	}
	return amd64.EmitProgram(frag)
}

type compiler struct {
	fn        *ir.Function
	alloc     *lower.Allocator
	fragments asm.Group
}

// Compile lowers fn into an instruction fragment.
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

func (c *compiler) compileInst(idx int, data ir.InstData) error {
	switch data.Opcode {
	case ir.OpLoad:
		return c.compileLoad(idx, data)
	case ir.OpIconst:
		return c.compileIconst(data)
	case ir.OpIadd:
		return c.compileIadd(idx, data)
	case ir.OpReturn:
		return c.compileReturn(data)
	default:
		return fmt.Errorf("unsupported opcode %s", data.Opcode)
	}
}

func (c *compiler) compileLoad(idx int, data ir.InstData) error {
	if err := lower.RequireI64(c.fn, data.Result, data.Args[0]); err != nil {
		return err
	}
	base, err := c.alloc.Reg(data.Args[0])
	if err != nil {
		return err
	}
	dst, err := c.alloc.Alloc(data.Result)
	if err != nil {
		return err
	}
	c.emit(amd64.MovFromMemory(amd64.Reg64(dst), amd64.Mem(amd64.Reg64(base)).WithDisp(data.Offset)))
	c.alloc.Release(idx, data.Args...)
	c.alloc.ReleaseUnused(data.Result)
	return nil
}

func (c *compiler) compileIconst(data ir.InstData) error {
	if err := lower.RequireI64(c.fn, data.Result); err != nil {
		return err
	}
	dst, err := c.alloc.Alloc(data.Result)
	if err != nil {
		return err
	}
	c.emit(amd64.MovImmediate(amd64.Reg64(dst), data.Imm))
	c.alloc.ReleaseUnused(data.Result)
	return nil
}

// compileIadd reuses the register of an operand that dies here, since the
// two-operand add overwrites its destination.
func (c *compiler) compileIadd(idx int, data ir.InstData) error {
	if err := lower.RequireI64(c.fn, data.Result, data.Args[0], data.Args[1]); err != nil {
		return err
	}
	a, b := data.Args[0], data.Args[1]
	regA, err := c.alloc.Reg(a)
	if err != nil {
		return err
	}
	regB, err := c.alloc.Reg(b)
	if err != nil {
		return err
	}

	switch {
	case c.alloc.Dies(a, idx):
		dst, err := c.alloc.Transfer(data.Result, a)
		if err != nil {
			return err
		}
		c.emit(amd64.AddRegReg(amd64.Reg64(dst), amd64.Reg64(regB)))
	case c.alloc.Dies(b, idx):
		dst, err := c.alloc.Transfer(data.Result, b)
		if err != nil {
			return err
		}
		c.emit(amd64.AddRegReg(amd64.Reg64(dst), amd64.Reg64(regA)))
	default:
		dst, err := c.alloc.Alloc(data.Result)
		if err != nil {
			return err
		}
		c.emit(
			amd64.MovReg(amd64.Reg64(dst), amd64.Reg64(regA)),
			amd64.AddRegReg(amd64.Reg64(dst), amd64.Reg64(regB)),
		)
	}
	c.alloc.Release(idx, data.Args...)
	c.alloc.ReleaseUnused(data.Result)
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
		if reg != amd64.RAX {
			c.emit(amd64.MovReg(amd64.Reg64(amd64.RAX), amd64.Reg64(reg)))
		}
	default:
		return fmt.Errorf("%d return values; at most one is supported", len(data.Args))
	}
	c.emit(amd64.Ret())
	return nil
}
