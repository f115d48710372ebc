//go:build linux

package jit

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

type region struct {
	mem  []byte
	base uintptr
}

// mapExecutable copies code into a fresh anonymous mapping and flips it from
// read+write to read+execute. The mapping is never writable and executable at
// the same time. On arm64 the kernel synchronises the instruction cache when
// the page first becomes executable.
func mapExecutable(code []byte) (*region, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("empty code")
	}
	pageSize := unix.Getpagesize()
	size := ((len(code) + pageSize - 1) / pageSize) * pageSize

	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap code region: %w", err)
	}
	release := true
	defer func() {
		if release {
			_ = unix.Munmap(mem)
		}
	}()

	copy(mem, code)

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return nil, fmt.Errorf("mprotect code region: %w", err)
	}

	release = false
	return &region{mem: mem, base: uintptr(unsafe.Pointer(&mem[0]))}, nil
}

func (r *region) release() error {
	if err := unix.Munmap(r.mem); err != nil {
		return fmt.Errorf("munmap code region: %w", err)
	}
	return nil
}
