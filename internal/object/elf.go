package object

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/jitadd/internal/module"
	"github.com/tinyrange/jitadd/internal/target"
)

const (
	elfHeaderSize     = 64
	elfSectionHdrSize = 64
	elfSymbolSize     = 24
)

// Section indexes in emission order.
const (
	sectionNull = iota
	sectionText
	sectionNoteStack
	sectionSymtab
	sectionStrtab
	sectionShstrtab
	sectionCount
)

func machineFor(arch target.Architecture) (elf.Machine, error) {
	switch arch {
	case target.ArchitectureX86_64:
		return elf.EM_X86_64, nil
	case target.ArchitectureARM64:
		return elf.EM_AARCH64, nil
	default:
		return elf.EM_NONE, fmt.Errorf("no ELF machine for architecture %q", arch)
	}
}

// stringTable builds an ELF string table. Offset 0 is the empty string.
type stringTable struct {
	buf     bytes.Buffer
	offsets map[string]uint32
}

func newStringTable() *stringTable {
	t := &stringTable{offsets: map[string]uint32{"": 0}}
	t.buf.WriteByte(0)
	return t
}

func (t *stringTable) add(s string) uint32 {
	if off, ok := t.offsets[s]; ok {
		return off
	}
	off := uint32(t.buf.Len())
	t.buf.WriteString(s)
	t.buf.WriteByte(0)
	t.offsets[s] = off
	return off
}

// Emit serializes the product as an ELF64 little-endian relocatable object
// with sections .text, .note.GNU-stack, .symtab, .strtab and .shstrtab. The
// code is position independent and needs no relocations.
func (p *Product) Emit() ([]byte, error) {
	machine, err := machineFor(p.Target.Arch)
	if err != nil {
		return nil, module.Wrap("emit", p.Name, err)
	}

	strtab := newStringTable()
	syms, firstGlobal := p.symbolTable(strtab)

	shstrtab := newStringTable()
	names := [sectionCount]uint32{
		sectionText:      shstrtab.add(".text"),
		sectionNoteStack: shstrtab.add(".note.GNU-stack"),
		sectionSymtab:    shstrtab.add(".symtab"),
		sectionStrtab:    shstrtab.add(".strtab"),
		sectionShstrtab:  shstrtab.add(".shstrtab"),
	}

	var body bytes.Buffer
	body.Write(make([]byte, elfHeaderSize))
	place := func(data []byte, align int) uint64 {
		for body.Len()%align != 0 {
			body.WriteByte(0)
		}
		off := uint64(body.Len())
		body.Write(data)
		return off
	}

	textOff := place(p.Text, codeAlignment)
	noteOff := uint64(body.Len())

	var symBuf bytes.Buffer
	if err := binary.Write(&symBuf, binary.LittleEndian, syms); err != nil {
		return nil, module.Wrap("emit", p.Name, fmt.Errorf("encode symbols: %w", err))
	}
	symOff := place(symBuf.Bytes(), 8)
	strOff := place(strtab.buf.Bytes(), 1)
	shstrOff := place(shstrtab.buf.Bytes(), 1)
	shOff := place(nil, 8)

	sections := [sectionCount]elf.Section64{
		sectionText: {
			Name:      names[sectionText],
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Off:       textOff,
			Size:      uint64(len(p.Text)),
			Addralign: codeAlignment,
		},
		// An empty .note.GNU-stack marks the object as not needing an
		// executable stack.
		sectionNoteStack: {
			Name:      names[sectionNoteStack],
			Type:      uint32(elf.SHT_PROGBITS),
			Off:       noteOff,
			Addralign: 1,
		},
		sectionSymtab: {
			Name:      names[sectionSymtab],
			Type:      uint32(elf.SHT_SYMTAB),
			Off:       symOff,
			Size:      uint64(symBuf.Len()),
			Link:      sectionStrtab,
			Info:      firstGlobal,
			Addralign: 8,
			Entsize:   elfSymbolSize,
		},
		sectionStrtab: {
			Name:      names[sectionStrtab],
			Type:      uint32(elf.SHT_STRTAB),
			Off:       strOff,
			Size:      uint64(strtab.buf.Len()),
			Addralign: 1,
		},
		sectionShstrtab: {
			Name:      names[sectionShstrtab],
			Type:      uint32(elf.SHT_STRTAB),
			Off:       shstrOff,
			Size:      uint64(shstrtab.buf.Len()),
			Addralign: 1,
		},
	}
	if err := binary.Write(&body, binary.LittleEndian, sections); err != nil {
		return nil, module.Wrap("emit", p.Name, fmt.Errorf("encode section headers: %w", err))
	}

	hdr := elf.Header64{
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shOff,
		Ehsize:    elfHeaderSize,
		Shentsize: elfSectionHdrSize,
		Shnum:     sectionCount,
		Shstrndx:  sectionShstrtab,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	hdr.Ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	out := body.Bytes()
	var hdrBuf bytes.Buffer
	if err := binary.Write(&hdrBuf, binary.LittleEndian, hdr); err != nil {
		return nil, module.Wrap("emit", p.Name, fmt.Errorf("encode header: %w", err))
	}
	copy(out, hdrBuf.Bytes())
	return out, nil
}

// symbolTable orders symbols locals first, as ELF requires, and returns the
// index of the first global.
func (p *Product) symbolTable(strtab *stringTable) ([]elf.Sym64, uint32) {
	syms := []elf.Sym64{
		{},
		{
			Name:  strtab.add(p.Name),
			Info:  elf.ST_INFO(elf.STB_LOCAL, elf.STT_FILE),
			Shndx: uint16(elf.SHN_ABS),
		},
		{
			Info:  elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION),
			Shndx: sectionText,
		},
	}

	var globals []elf.Sym64
	for _, sym := range p.Symbols {
		entry := elf.Sym64{Name: strtab.add(sym.Name)}
		switch {
		case !sym.Defined:
			entry.Info = elf.ST_INFO(elf.STB_GLOBAL, elf.STT_NOTYPE)
			entry.Shndx = uint16(elf.SHN_UNDEF)
		case sym.Linkage == module.Local:
			entry.Info = elf.ST_INFO(elf.STB_LOCAL, elf.STT_FUNC)
		default:
			entry.Info = elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)
		}
		if sym.Defined {
			entry.Shndx = sectionText
			entry.Value = sym.Offset
			entry.Size = sym.Size
		}
		if elf.ST_BIND(entry.Info) == elf.STB_LOCAL {
			syms = append(syms, entry)
		} else {
			globals = append(globals, entry)
		}
	}
	firstGlobal := uint32(len(syms))
	return append(syms, globals...), firstGlobal
}
