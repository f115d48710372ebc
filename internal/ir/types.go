package ir

import (
	"fmt"
	"strings"

	"github.com/tinyrange/jitadd/internal/target"
)

// Type is a scalar value type.
type Type uint8

const (
	TypeInvalid Type = iota
	I8
	I16
	I32
	I64
)

func (t Type) Bits() int {
	switch t {
	case I8:
		return 8
	case I16:
		return 16
	case I32:
		return 32
	case I64:
		return 64
	default:
		return 0
	}
}

func (t Type) Bytes() int { return t.Bits() / 8 }

func (t Type) IsInt() bool { return t.Bits() != 0 }

func (t Type) String() string {
	if !t.IsInt() {
		return "invalid"
	}
	return fmt.Sprintf("i%d", t.Bits())
}

// IntType returns the integer type of the given width in bytes.
func IntType(bytes int) Type {
	switch bytes {
	case 1:
		return I8
	case 2:
		return I16
	case 4:
		return I32
	case 8:
		return I64
	default:
		return TypeInvalid
	}
}

// PointerType returns the integer type used to carry addresses on desc.
func PointerType(desc target.Descriptor) Type {
	return IntType(desc.PointerSize)
}

// AbiParam is one parameter or return slot of a Signature.
type AbiParam struct {
	Type Type
}

func NewAbiParam(t Type) AbiParam { return AbiParam{Type: t} }

type Signature struct {
	Params   []AbiParam
	Returns  []AbiParam
	CallConv target.CallConv
}

func NewSignature(cc target.CallConv) Signature {
	return Signature{CallConv: cc}
}

func (s Signature) Equal(other Signature) bool {
	if s.CallConv != other.CallConv || len(s.Params) != len(other.Params) || len(s.Returns) != len(other.Returns) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range s.Returns {
		if s.Returns[i] != other.Returns[i] {
			return false
		}
	}
	return true
}

func (s Signature) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	writeParams(&sb, s.Params)
	sb.WriteString(")")
	if len(s.Returns) > 0 {
		sb.WriteString(" -> ")
		writeParams(&sb, s.Returns)
	}
	if s.CallConv != "" {
		sb.WriteString(" ")
		sb.WriteString(string(s.CallConv))
	}
	return sb.String()
}

func writeParams(sb *strings.Builder, params []AbiParam) {
	for i, p := range params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Type.String())
	}
}

// MemFlags describe what a memory access may assume about its address.
type MemFlags uint8

const (
	MemNotrap MemFlags = 1 << iota
	MemAligned
)

// TrustedMemFlags marks an access the caller guarantees is valid and aligned.
func TrustedMemFlags() MemFlags { return MemNotrap | MemAligned }

func (f MemFlags) Trusted() bool { return f&TrustedMemFlags() == TrustedMemFlags() }

func (f MemFlags) String() string {
	var parts []string
	if f&MemNotrap != 0 {
		parts = append(parts, "notrap")
	}
	if f&MemAligned != 0 {
		parts = append(parts, "aligned")
	}
	return strings.Join(parts, " ")
}
