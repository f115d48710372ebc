package ir

import (
	"fmt"
	"io"
	"strings"
)

// String renders the function as text, one instruction per line.
func (f *Function) String() string {
	var sb strings.Builder
	_ = f.Write(&sb)
	return sb.String()
}

func (f *Function) Write(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "function %%%s%s {\n", f.Name, f.Signature)
	for _, blk := range f.Blocks() {
		sb.WriteString(blk.String())
		if params := f.BlockParams(blk); len(params) > 0 {
			sb.WriteString("(")
			for i, p := range params {
				if i > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "%s: %s", p, f.ValueType(p))
			}
			sb.WriteString(")")
		}
		sb.WriteString(":\n")
		for _, inst := range f.BlockInsts(blk) {
			sb.WriteString("    ")
			sb.WriteString(f.formatInst(f.InstData(inst)))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func (f *Function) formatInst(d InstData) string {
	switch d.Opcode {
	case OpLoad:
		addr := ValueInvalid
		if len(d.Args) > 0 {
			addr = d.Args[0]
		}
		s := fmt.Sprintf("%s = load.%s", d.Result, d.Type)
		if flags := d.Flags.String(); flags != "" {
			s += " " + flags
		}
		s += " " + addr.String()
		if d.Offset != 0 {
			s += fmt.Sprintf("%+d", d.Offset)
		}
		return s
	case OpIconst:
		return fmt.Sprintf("%s = iconst.%s %d", d.Result, d.Type, d.Imm)
	case OpIadd:
		return fmt.Sprintf("%s = iadd %s", d.Result, joinValues(d.Args))
	case OpReturn:
		if len(d.Args) == 0 {
			return "return"
		}
		return "return " + joinValues(d.Args)
	default:
		return fmt.Sprintf("; invalid opcode %d", d.Opcode)
	}
}

func joinValues(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}
