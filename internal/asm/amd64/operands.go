package amd64

import (
	"fmt"

	"github.com/tinyrange/jitadd/internal/asm"
)

type operandSize uint8

const (
	size32 operandSize = 4
	size64 operandSize = 8
)

// Reg is a general-purpose register viewed at an operand width.
type Reg struct {
	id   asm.Variable
	size operandSize
}

func Reg64(id asm.Variable) Reg { return Reg{id: id, size: size64} }

// Reg32 is the low half of id. Writes to it zero the upper 32 bits.
func Reg32(id asm.Variable) Reg { return Reg{id: id, size: size32} }

func (r Reg) ID() asm.Variable { return r.id }

// String uses AT&T names: %rax/%eax, %r8/%r8d.
func (r Reg) String() string {
	name := RegisterName(r.id)
	if r.size == size64 {
		return "%" + name
	}
	if r.id >= R8 && r.id <= R15 {
		return "%" + name + "d"
	}
	return "%e" + name[1:]
}

// Memory is a disp(base) effective address.
type Memory struct {
	base Reg
	disp int32
}

func Mem(base Reg) Memory { return Memory{base: base} }

func (m Memory) WithDisp(disp int32) Memory {
	m.disp = disp
	return m
}

func (m Memory) String() string {
	if m.disp == 0 {
		return fmt.Sprintf("(%s)", m.base)
	}
	return fmt.Sprintf("%#x(%s)", m.disp, m.base)
}

func (m Memory) validate() error {
	if m.base.size != size64 {
		return fmt.Errorf("memory base %s must be a 64-bit register", m.base)
	}
	return nil
}

type fragmentFunc func(asm.Context) error

func (f fragmentFunc) Emit(ctx asm.Context) error { return f(ctx) }
