package arm64

import (
	"fmt"

	"github.com/tinyrange/jitadd/internal/asm"
)

// Register identifiers mirror the amd64 package so lowering code reads the
// same on both architectures. Register 31 is XZR or SP depending on the
// instruction and is not exposed.
const (
	X0 asm.Variable = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
)

type operandSize uint8

const (
	size32 operandSize = 32
	size64 operandSize = 64
)

// Reg stores the logical register plus the width used by the instruction.
type Reg struct {
	id   asm.Variable
	size operandSize
}

func Reg32(id asm.Variable) Reg { return Reg{id: id, size: size32} }
func Reg64(id asm.Variable) Reg { return Reg{id: id, size: size64} }

func (r Reg) ID() asm.Variable { return r.id }

func (r Reg) String() string {
	prefix := "x"
	if r.size == size32 {
		prefix = "w"
	}
	return fmt.Sprintf("%s%d", prefix, r.id)
}

func (r Reg) validate() error {
	if r.id < X0 || r.id > X30 {
		return fmt.Errorf("arm64 asm: invalid register %d", r.id)
	}
	switch r.size {
	case size32, size64:
		return nil
	default:
		return fmt.Errorf("arm64 asm: unsupported register width %d", r.size)
	}
}

// Memory represents [base, #imm] addressing with an unsigned scaled offset.
type Memory struct {
	base    Reg
	hasBase bool
	disp    int32
}

func Mem(base Reg) Memory {
	return Memory{base: base, hasBase: true}
}

func (m Memory) WithDisp(disp int32) Memory {
	m.disp = disp
	return m
}

func (m Memory) validate() error {
	if !m.hasBase {
		return fmt.Errorf("arm64 asm: memory reference missing base register")
	}
	if m.base.size != size64 {
		return fmt.Errorf("arm64 asm: base register must be 64-bit")
	}
	return m.base.validate()
}

type fragmentFunc func(asm.Context) error

func (f fragmentFunc) Emit(ctx asm.Context) error {
	return f(ctx)
}
