package amd64

import (
	"math"
	"testing"

	"github.com/tinyrange/jitadd/internal/asm"
	"github.com/tinyrange/jitadd/internal/asm/testutil"
)

func TestDisassembly(t *testing.T) {
	frag := asm.Group{
		MovFromMemory(Reg64(RAX), Mem(Reg64(RDI))),
		MovFromMemory(Reg64(RBX), Mem(Reg64(RSP)).WithDisp(0x18)),
		MovImmediate(Reg64(RCX), math.MinInt64),
		MovImmediate(Reg64(RDX), -5),
		MovReg(Reg64(R9), Reg64(R10)),
		AddRegReg(Reg64(RAX), Reg64(RCX)),
		Ret(),
	}
	expect := []testutil.Expectation{
		{Name: "load", Mnemonic: "mov", Contains: []string{"(%rdi),%rax"}},
		{Name: "load_disp", Mnemonic: "mov", Contains: []string{"0x18(%rsp),%rbx"}},
		{Name: "movabs", Mnemonic: "movabs", Contains: []string{"$0x8000000000000000,%rcx"}},
		{Name: "mov_neg", Mnemonic: "mov", Contains: []string{"$0xfffffffffffffffb,%rdx"}},
		{Name: "mov_reg", Mnemonic: "mov", Contains: []string{"%r10,%r9"}},
		{Name: "add", Mnemonic: "add", Contains: []string{"%rcx,%rax"}},
		{Name: "ret", Mnemonic: "ret"},
	}

	prog, err := EmitProgram(frag)
	if err != nil {
		t.Fatalf("EmitProgram failed: %v", err)
	}
	lines := testutil.DisassembleWithObjdump(t, prog.Bytes(), testutil.MachineX86_64, "-M", "att")
	testutil.VerifyExpectations(t, lines, expect)
}
