package arm64

import (
	"fmt"
)

func requireX(op string, regs ...Reg) error {
	for _, r := range regs {
		if err := r.validate(); err != nil {
			return err
		}
		if r.size != size64 {
			return fmt.Errorf("arm64 asm: %s requires 64-bit operands", op)
		}
	}
	return nil
}

func encodeAddReg64(dst, left, right Reg) (uint32, error) {
	if err := requireX("ADD register", dst, left, right); err != nil {
		return 0, err
	}
	return 0x8B000000 | (uint32(right.id) << 16) | (uint32(left.id) << 5) | uint32(dst.id), nil
}

// encodeMoveReg encodes MOV as ORR dst, XZR, src.
func encodeMoveReg(dst, src Reg) (uint32, error) {
	if err := requireX("MOV", dst, src); err != nil {
		return 0, err
	}
	return 0xAA0003E0 | (uint32(src.id) << 16) | uint32(dst.id), nil
}

type wideMove uint32

const (
	moveN wideMove = 0x92800000
	moveZ wideMove = 0xD2800000
	moveK wideMove = 0xF2800000
)

func encodeWideMove(op wideMove, dst Reg, imm uint16, shift uint32) (uint32, error) {
	if err := requireX("MOVZ/MOVN/MOVK", dst); err != nil {
		return 0, err
	}
	if shift%16 != 0 || shift > 48 {
		return 0, fmt.Errorf("arm64 asm: invalid wide move shift %d", shift)
	}
	hw := shift / 16
	return uint32(op) | (hw << 21) | (uint32(imm) << 5) | uint32(dst.id), nil
}

// encodeMovImmediate materialises a 64-bit constant with one MOVZ or MOVN
// followed by MOVKs for the remaining halfwords, whichever needs fewer words.
func encodeMovImmediate(dst Reg, value uint64) ([]uint32, error) {
	var chunks [4]uint16
	zeros, ones := 0, 0
	for i := range chunks {
		chunks[i] = uint16(value >> (16 * i))
		switch chunks[i] {
		case 0:
			zeros++
		case 0xFFFF:
			ones++
		}
	}

	first, filler := moveZ, uint16(0)
	if ones > zeros {
		first, filler = moveN, 0xFFFF
	}

	lead := 0
	for lead < len(chunks)-1 && chunks[lead] == filler {
		lead++
	}
	if chunks[lead] == filler {
		lead = 0
	}

	imm := chunks[lead]
	if first == moveN {
		imm = ^imm
	}
	word, err := encodeWideMove(first, dst, imm, uint32(16*lead))
	if err != nil {
		return nil, err
	}
	words := []uint32{word}
	for i := lead + 1; i < len(chunks); i++ {
		if chunks[i] == filler {
			continue
		}
		word, err := encodeWideMove(moveK, dst, chunks[i], uint32(16*i))
		if err != nil {
			return nil, err
		}
		words = append(words, word)
	}
	return words, nil
}

// encodeLoad64 encodes LDR Xt, [Xn, #imm] with an unsigned offset scaled by 8.
func encodeLoad64(dst Reg, mem Memory) (uint32, error) {
	if err := mem.validate(); err != nil {
		return 0, err
	}
	if err := requireX("LDR", dst); err != nil {
		return 0, err
	}
	if mem.disp < 0 {
		return 0, fmt.Errorf("arm64 asm: negative offsets not supported in unsigned load")
	}
	if mem.disp%8 != 0 {
		return 0, fmt.Errorf("arm64 asm: misaligned offset %d", mem.disp)
	}
	imm := mem.disp / 8
	if imm > 0xFFF {
		return 0, fmt.Errorf("arm64 asm: offset out of range (%d)", mem.disp)
	}
	return 0xF9400000 | (uint32(imm) << 10) | (uint32(mem.base.id) << 5) | uint32(dst.id), nil
}

func encodeRet() uint32 {
	// RET X30
	return 0xD65F03C0
}
