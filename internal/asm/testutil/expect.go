package testutil

import (
	"fmt"
	"testing"
)

// Expectation describes one instruction that should appear in objdump output.
type Expectation struct {
	Name     string
	Mnemonic string
	Contains []string
}

func (e Expectation) match(line DisasmLine) error {
	if e.Mnemonic != "" && line.Mnemonic != e.Mnemonic {
		return fmt.Errorf("mnemonic=%s, want %s", line.Mnemonic, e.Mnemonic)
	}
	for _, needle := range e.Contains {
		if !line.Contains(needle) {
			return fmt.Errorf("missing %q in %q", needle, line.Normalized)
		}
	}
	return nil
}

// VerifyExpectations checks lines against expect in order. Trailing lines
// beyond the expectations are ignored.
func VerifyExpectations(t *testing.T, lines []DisasmLine, expect []Expectation) {
	t.Helper()
	if len(lines) < len(expect) {
		t.Fatalf("objdump returned %d instructions, want at least %d", len(lines), len(expect))
	}
	for idx, exp := range expect {
		if err := exp.match(lines[idx]); err != nil {
			t.Fatalf("instruction %q mismatch at line %d: %v\nline: %s", exp.Name, idx, err, lines[idx].Text)
		}
	}
}

// Mnemonics returns the mnemonic of every disassembled line.
func Mnemonics(lines []DisasmLine) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = line.Mnemonic
	}
	return out
}
