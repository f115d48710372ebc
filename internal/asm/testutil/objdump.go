package testutil

import (
	"bufio"
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

const (
	// MachineX86_64 is the ELF e_machine value for AMD64.
	MachineX86_64 = uint16(elf.EM_X86_64)
	// MachineAArch64 is the ELF e_machine value for AArch64.
	MachineAArch64 = uint16(elf.EM_AARCH64)
)

// DisasmLine represents a single instruction line emitted by objdump.
type DisasmLine struct {
	Text       string
	Normalized string
	Mnemonic   string
}

// Contains reports whether the normalized instruction text contains the provided substring.
func (l DisasmLine) Contains(substr string) bool {
	return strings.Contains(l.Normalized, substr)
}

// DisassembleWithObjdump wraps raw code bytes into a throwaway ELF for the
// supplied machine and runs objdump -d --no-show-raw-insn on it.
func DisassembleWithObjdump(t *testing.T, code []byte, machine uint16, extraArgs ...string) []DisasmLine {
	t.Helper()
	return DisassembleObject(t, wrapCode(code, machine), extraArgs...)
}

// DisassembleObject runs objdump over a complete ELF image, such as a
// relocatable object produced by the object backend. It skips the test when
// objdump is unavailable or cannot handle the image's machine.
func DisassembleObject(t *testing.T, image []byte, extraArgs ...string) []DisasmLine {
	t.Helper()

	tool, err := exec.LookPath("objdump")
	if err != nil {
		t.Skipf("objdump not found: %v", err)
	}

	path := filepath.Join(t.TempDir(), "disasm.o")
	if err := os.WriteFile(path, image, 0o644); err != nil {
		t.Fatalf("write temp ELF: %v", err)
	}

	args := append([]string{"-d", "--no-show-raw-insn"}, extraArgs...)
	args = append(args, path)
	output, err := exec.Command(tool, args...).CombinedOutput()
	if err != nil {
		if bytes.Contains(output, []byte("can't disassemble")) || bytes.Contains(output, []byte("not supported")) {
			t.Skipf("objdump cannot handle this machine: %s", output)
		}
		t.Fatalf("objdump failed: %v\n\n%s", err, output)
	}

	lines, err := parseObjdumpOutput(string(output))
	if err != nil {
		t.Fatalf("parse objdump output: %v", err)
	}
	if len(lines) == 0 {
		t.Fatalf("objdump produced no instructions:\n%s", output)
	}
	return lines
}

// wrapCode produces an ELF64 relocatable image with code as its only
// executable section. The layout is header, .text, .shstrtab, then section
// headers.
func wrapCode(code []byte, machine uint16) []byte {
	const (
		headerSize  = 64
		sectionSize = 64
	)
	shstrtab := []byte("\x00.text\x00.shstrtab\x00")

	textOff := uint64(headerSize)
	shstrOff := textOff + uint64(len(code))
	shOff := alignUp(shstrOff+uint64(len(shstrtab)), 8)

	hdr := elf.Header64{
		Type:      uint16(elf.ET_REL),
		Machine:   machine,
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shOff,
		Ehsize:    headerSize,
		Shentsize: sectionSize,
		Shnum:     3,
		Shstrndx:  2,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	sections := []elf.Section64{
		{},
		{
			Name:      1,
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Off:       textOff,
			Size:      uint64(len(code)),
			Addralign: 16,
		},
		{
			Name:      7,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       shstrOff,
			Size:      uint64(len(shstrtab)),
			Addralign: 1,
		},
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, hdr)
	buf.Write(code)
	buf.Write(shstrtab)
	for uint64(buf.Len()) < shOff {
		buf.WriteByte(0)
	}
	_ = binary.Write(&buf, binary.LittleEndian, sections)
	return buf.Bytes()
}

func parseObjdumpOutput(out string) ([]DisasmLine, error) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	var lines []DisasmLine
	for scanner.Scan() {
		line := scanner.Text()
		colon := strings.IndexRune(line, ':')
		if colon == -1 {
			continue
		}
		text := strings.TrimSpace(line[colon+1:])
		if text == "" || strings.HasPrefix(text, "<") {
			continue
		}
		if strings.HasPrefix(text, ".") || strings.HasPrefix(text, "file format") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		lines = append(lines, DisasmLine{
			Text:       text,
			Normalized: strings.Join(fields, " "),
			Mnemonic:   strings.ToLower(fields[0]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	return lines, nil
}

func alignUp(v, boundary uint64) uint64 {
	return (v + boundary - 1) &^ (boundary - 1)
}
