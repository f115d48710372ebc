package arm64

import (
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/jitadd/internal/asm"
)

type Context struct {
	text []byte
}

var _ asm.Context = (*Context)(nil)

func newContext() *Context {
	return &Context{}
}

func (c *Context) EmitBytes(data []byte) {
	c.text = append(c.text, data...)
}

func (c *Context) Len() int {
	return len(c.text)
}

func (c *Context) emit32(word uint32) {
	c.text = binary.LittleEndian.AppendUint32(c.text, word)
}

// EmitProgram lowers a fragment into machine code for AArch64.
func EmitProgram(fragment asm.Fragment) (asm.Program, error) {
	if fragment == nil {
		return asm.Program{}, fmt.Errorf("arm64 asm: fragment is nil")
	}
	ctx := newContext()
	if err := fragment.Emit(ctx); err != nil {
		return asm.Program{}, err
	}
	if len(ctx.text)%4 != 0 {
		return asm.Program{}, fmt.Errorf("arm64 asm: text length %d is not word aligned", len(ctx.text))
	}
	return asm.NewProgram(ctx.text), nil
}

// EmitBytes is a convenience helper returning the raw instruction stream for a fragment.
func EmitBytes(fragment asm.Fragment) ([]byte, error) {
	prog, err := EmitProgram(fragment)
	if err != nil {
		return nil, err
	}
	return prog.Bytes(), nil
}

func emitWords(ctx asm.Context, words ...uint32) {
	if c, ok := ctx.(*Context); ok {
		for _, w := range words {
			c.emit32(w)
		}
		return
	}
	buf := make([]byte, 0, 4*len(words))
	for _, w := range words {
		buf = binary.LittleEndian.AppendUint32(buf, w)
	}
	ctx.EmitBytes(buf)
}

func word(encode func() (uint32, error)) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		w, err := encode()
		if err != nil {
			return err
		}
		emitWords(ctx, w)
		return nil
	})
}

func MovImmediate(dst Reg, value int64) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		words, err := encodeMovImmediate(dst, uint64(value))
		if err != nil {
			return err
		}
		emitWords(ctx, words...)
		return nil
	})
}

func MovReg(dst, src Reg) asm.Fragment {
	return word(func() (uint32, error) { return encodeMoveReg(dst, src) })
}

func MovFromMemory64(dst Reg, mem Memory) asm.Fragment {
	return word(func() (uint32, error) { return encodeLoad64(dst, mem) })
}

// AddRegRegReg computes dst = left + right modulo 2^64.
func AddRegRegReg(dst, left, right Reg) asm.Fragment {
	return word(func() (uint32, error) { return encodeAddReg64(dst, left, right) })
}

func Ret() asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		emitWords(ctx, encodeRet())
		return nil
	})
}
