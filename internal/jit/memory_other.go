//go:build !linux

package jit

import (
	"fmt"
	"runtime"
)

type region struct {
	base uintptr
}

func mapExecutable([]byte) (*region, error) {
	return nil, fmt.Errorf("executable memory is not supported on %s", runtime.GOOS)
}

func (r *region) release() error { return nil }
