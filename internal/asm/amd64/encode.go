package amd64

import (
	"encoding/binary"
	"fmt"
	"math"
)

type rexState struct {
	w bool
	r bool
	b bool
}

func (r rexState) prefix() byte {
	if !r.w && !r.r && !r.b {
		return 0
	}
	p := byte(0x40)
	if r.w {
		p |= 0x08
	}
	if r.r {
		p |= 0x04
	}
	if r.b {
		p |= 0x01
	}
	return p
}

func appendREX(out []byte, rex rexState) []byte {
	if p := rex.prefix(); p != 0 {
		out = append(out, p)
	}
	return out
}

type memEncoding struct {
	modrm byte
	sib   []byte
	disp  []byte
	high  bool
}

func encodeMemoryOperand(mem Memory) (memEncoding, error) {
	if err := mem.validate(); err != nil {
		return memEncoding{}, err
	}
	base, err := regInfo(mem.base.id)
	if err != nil {
		return memEncoding{}, err
	}

	enc := memEncoding{high: base.high}
	rm := base.code

	switch disp := mem.disp; {
	case disp == 0 && rm != 5:
		// [rbp] and [r13] have no mod=00 form and take a zero disp8 below.
		enc.modrm = 0x00
	case disp >= math.MinInt8 && disp <= math.MaxInt8:
		enc.modrm = 0x40
		enc.disp = []byte{byte(int8(disp))}
	default:
		enc.modrm = 0x80
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(disp))
		enc.disp = buf[:]
	}

	if rm == 4 {
		// rsp and r12 as a base always need a SIB byte with no index.
		enc.sib = []byte{0x24}
	}

	enc.modrm |= rm
	return enc, nil
}

func encodeMovRegImm(reg Reg, value int64) ([]byte, error) {
	if reg.size != size64 {
		return nil, fmt.Errorf("mov immediate requires 64-bit register, got %d-bit", reg.size*8)
	}
	info, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}

	switch {
	case value >= 0 && value <= math.MaxUint32:
		// mov r32, imm32 zero-extends into the full register.
		out := appendREX(make([]byte, 0, 6), rexState{b: info.high})
		out = append(out, 0xB8+info.code)
		return binary.LittleEndian.AppendUint32(out, uint32(value)), nil
	case value >= math.MinInt32 && value < 0:
		// mov r/m64, imm32 sign-extends.
		out := appendREX(make([]byte, 0, 7), rexState{w: true, b: info.high})
		out = append(out, 0xC7, 0xC0|info.code)
		return binary.LittleEndian.AppendUint32(out, uint32(int32(value))), nil
	default:
		out := appendREX(make([]byte, 0, 10), rexState{w: true, b: info.high})
		out = append(out, 0xB8+info.code)
		return binary.LittleEndian.AppendUint64(out, uint64(value)), nil
	}
}

func encodeMovRegReg(dst, src Reg) ([]byte, error) {
	return encodeALURegReg(0x89, dst, src)
}

func encodeMovRegMem(dst Reg, mem Memory) ([]byte, error) {
	if dst.size != size64 && dst.size != size32 {
		return nil, fmt.Errorf("unsupported register width %d", dst.size*8)
	}
	dstInfo, err := regInfo(dst.id)
	if err != nil {
		return nil, err
	}
	memEnc, err := encodeMemoryOperand(mem)
	if err != nil {
		return nil, err
	}

	out := appendREX(make([]byte, 0, 8), rexState{
		w: dst.size == size64,
		r: dstInfo.high,
		b: memEnc.high,
	})
	out = append(out, 0x8B, memEnc.modrm|(dstInfo.code<<3))
	out = append(out, memEnc.sib...)
	out = append(out, memEnc.disp...)
	return out, nil
}

// encodeALURegReg encodes the "op r/m, r" form used by mov and add.
func encodeALURegReg(opcode byte, dst, src Reg) ([]byte, error) {
	if dst.size != src.size {
		return nil, fmt.Errorf("mismatched register widths: %d vs %d", dst.size*8, src.size*8)
	}
	if dst.size != size64 && dst.size != size32 {
		return nil, fmt.Errorf("unsupported register width %d", dst.size*8)
	}
	dstInfo, err := regInfo(dst.id)
	if err != nil {
		return nil, err
	}
	srcInfo, err := regInfo(src.id)
	if err != nil {
		return nil, err
	}

	out := appendREX(make([]byte, 0, 3), rexState{
		w: dst.size == size64,
		r: srcInfo.high,
		b: dstInfo.high,
	})
	modrm := byte(0xC0 | (srcInfo.code << 3) | dstInfo.code)
	return append(out, opcode, modrm), nil
}

func encodeAddRegReg(dst, src Reg) ([]byte, error) {
	return encodeALURegReg(0x01, dst, src)
}

func encodeRet() []byte {
	return []byte{0xC3}
}
