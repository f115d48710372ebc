package amd64

import (
	"fmt"

	"github.com/tinyrange/jitadd/internal/asm"
)

const (
	RAX asm.Variable = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RSP
	RBP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var registerNames = [...]string{
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rsp", "rbp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// RegisterName returns the lower-case mnemonic of a 64-bit register.
func RegisterName(v asm.Variable) string {
	if v < RAX || v > R15 {
		return fmt.Sprintf("r?%d", v)
	}
	return registerNames[v]
}

type Context struct {
	text []byte
}

var _ asm.Context = (*Context)(nil)

func newContext() *Context {
	return &Context{}
}

func (c *Context) EmitBytes(code []byte) {
	c.text = append(c.text, code...)
}

func (c *Context) Len() int {
	return len(c.text)
}

func EmitProgram(fragment asm.Fragment) (asm.Program, error) {
	if fragment == nil {
		return asm.Program{}, fmt.Errorf("amd64 asm: fragment is nil")
	}
	ctx := newContext()
	if err := fragment.Emit(ctx); err != nil {
		return asm.Program{}, err
	}
	return asm.NewProgram(ctx.text), nil
}

func EmitBytes(fragment asm.Fragment) ([]byte, error) {
	prog, err := EmitProgram(fragment)
	if err != nil {
		return nil, err
	}
	return prog.Bytes(), nil
}

type registerCode struct {
	code     byte
	high     bool
	needsRex bool
}

func regInfo(v asm.Variable) (registerCode, error) {
	switch v {
	case RAX:
		return registerCode{code: 0}, nil
	case RBX:
		return registerCode{code: 3}, nil
	case RCX:
		return registerCode{code: 1}, nil
	case RDX:
		return registerCode{code: 2}, nil
	case RSI:
		return registerCode{code: 6, needsRex: true}, nil
	case RDI:
		return registerCode{code: 7, needsRex: true}, nil
	case RSP:
		return registerCode{code: 4, needsRex: true}, nil
	case RBP:
		return registerCode{code: 5, needsRex: true}, nil
	case R8, R9, R10, R11, R12, R13, R14, R15:
		return registerCode{code: byte(v-R8) & 7, high: true, needsRex: true}, nil
	default:
		return registerCode{}, fmt.Errorf("unsupported register %d", v)
	}
}
