package amd64

import (
	"github.com/tinyrange/jitadd/internal/asm"
)

func encoded(encode func() ([]byte, error)) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		bytes, err := encode()
		if err != nil {
			return err
		}
		ctx.EmitBytes(bytes)
		return nil
	})
}

// MovImmediate loads a 64-bit constant, picking the shortest encoding that
// preserves the value.
func MovImmediate(dst Reg, value int64) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovRegImm(dst, value) })
}

func MovReg(dst, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovRegReg(dst, src) })
}

func MovFromMemory(dst Reg, mem Memory) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovRegMem(dst, mem) })
}

// AddRegReg computes dst += src with two's complement wraparound.
func AddRegReg(dst, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeAddRegReg(dst, src) })
}

func Ret() asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		ctx.EmitBytes(encodeRet())
		return nil
	})
}
