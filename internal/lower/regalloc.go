package lower

import (
	"fmt"

	"github.com/tinyrange/jitadd/internal/asm"
	"github.com/tinyrange/jitadd/internal/ir"
)

// Allocator hands out machine registers to SSA values inside one block.
// Registers are taken in a fixed preference order and return to the pool
// after the value's last use, so allocation is deterministic.
type Allocator struct {
	order   []asm.Variable
	busy    map[asm.Variable]bool
	regs    map[ir.Value]asm.Variable
	lastUse map[ir.Value]int
}

// NewAllocator prepares an allocator for the instructions of blk.
func NewAllocator(fn *ir.Function, blk ir.Block, order []asm.Variable) *Allocator {
	return &Allocator{
		order:   append([]asm.Variable(nil), order...),
		busy:    make(map[asm.Variable]bool),
		regs:    make(map[ir.Value]asm.Variable),
		lastUse: LastUses(fn, blk),
	}
}

// LastUses maps each value used in blk to the index of the last instruction
// that reads it.
func LastUses(fn *ir.Function, blk ir.Block) map[ir.Value]int {
	out := make(map[ir.Value]int)
	for idx, inst := range fn.BlockInsts(blk) {
		for _, arg := range fn.InstData(inst).Args {
			out[arg] = idx
		}
	}
	return out
}

// Pin binds v to a specific register, for example an ABI parameter register.
func (a *Allocator) Pin(v ir.Value, reg asm.Variable) error {
	if a.busy[reg] {
		return fmt.Errorf("register %d already holds a live value", reg)
	}
	a.busy[reg] = true
	a.regs[v] = reg
	return nil
}

// Alloc assigns the first free register in preference order to v.
func (a *Allocator) Alloc(v ir.Value) (asm.Variable, error) {
	for _, reg := range a.order {
		if !a.busy[reg] {
			a.busy[reg] = true
			a.regs[v] = reg
			return reg, nil
		}
	}
	return 0, fmt.Errorf("register exhaustion allocating %s", v)
}

// Transfer moves the register of from to v. from must not be read again.
func (a *Allocator) Transfer(v, from ir.Value) (asm.Variable, error) {
	reg, err := a.Reg(from)
	if err != nil {
		return 0, err
	}
	delete(a.regs, from)
	a.regs[v] = reg
	return reg, nil
}

// Reg returns the register holding v.
func (a *Allocator) Reg(v ir.Value) (asm.Variable, error) {
	reg, ok := a.regs[v]
	if !ok {
		return 0, fmt.Errorf("%s is not in a register", v)
	}
	return reg, nil
}

// Dies reports whether instruction idx is the last reader of v.
func (a *Allocator) Dies(v ir.Value, idx int) bool {
	last, ok := a.lastUse[v]
	return ok && last == idx
}

// Release frees the registers of every value in vals whose last use is idx.
func (a *Allocator) Release(idx int, vals ...ir.Value) {
	for _, v := range vals {
		if a.Dies(v, idx) {
			a.free(v)
		}
	}
}

// ReleaseUnused frees v immediately when nothing in the block reads it.
func (a *Allocator) ReleaseUnused(v ir.Value) {
	if _, used := a.lastUse[v]; !used {
		a.free(v)
	}
}

func (a *Allocator) free(v ir.Value) {
	reg, ok := a.regs[v]
	if !ok {
		return
	}
	delete(a.regs, v)
	delete(a.busy, reg)
}
