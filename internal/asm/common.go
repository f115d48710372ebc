package asm

import "fmt"

// Variable names a machine register within an architecture package.
type Variable int

type Context interface {
	EmitBytes(data []byte)
	Len() int
}

type Fragment interface {
	Emit(ctx Context) error
}

type Group []Fragment

var (
	_ Fragment = Group{}
)

func (g Group) Emit(ctx Context) error {
	for _, frag := range g {
		if frag == nil {
			continue
		}
		if err := frag.Emit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Program is position-independent machine code ready to be copied into
// executable memory or an object file section.
type Program struct {
	code []byte
}

func NewProgram(code []byte) Program {
	return Program{code: append([]byte(nil), code...)}
}

func (p Program) Bytes() []byte {
	return append([]byte(nil), p.code...)
}

func (p Program) Len() int {
	return len(p.code)
}

func (p Program) String() string {
	return fmt.Sprintf("% x", p.code)
}
