// Package target resolves the instruction set, calling convention and object
// format the backends lower for.
package target

import (
	"fmt"
	"runtime"
)

// Descriptor is an immutable description of a target machine plus the codegen
// flags in effect. A new Descriptor is resolved for every backend invocation.
type Descriptor struct {
	Arch         Architecture
	OS           string
	Flags        Flags
	PointerSize  int
	CallConv     CallConv
	ObjectFormat ObjectFormat
}

// ResolutionError reports an unsupported host or a misconfigured setting.
type ResolutionError struct {
	OS      string
	Arch    string
	Setting string
	Reason  string
}

func (e *ResolutionError) Error() string {
	if e.Setting != "" {
		return fmt.Sprintf("target: setting %s: %s", e.Setting, e.Reason)
	}
	return fmt.Sprintf("target: %s/%s: %s", e.OS, e.Arch, e.Reason)
}

// Native resolves the descriptor of the running host.
func Native(flags Flags) (Descriptor, error) {
	return Lookup(runtime.GOOS, runtime.GOARCH, flags)
}

// Lookup resolves an explicit OS/architecture pair. Only ELF platforms are
// supported.
func Lookup(goos, goarch string, flags Flags) (Descriptor, error) {
	if err := flags.validate(); err != nil {
		return Descriptor{}, err
	}

	arch, err := ParseArchitecture(goarch)
	if err != nil {
		return Descriptor{}, &ResolutionError{OS: goos, Arch: goarch, Reason: "unsupported architecture"}
	}
	if goos != "linux" {
		return Descriptor{}, &ResolutionError{OS: goos, Arch: goarch, Reason: "unsupported operating system"}
	}

	desc := Descriptor{
		Arch:         arch,
		OS:           goos,
		Flags:        flags,
		PointerSize:  8,
		ObjectFormat: ObjectFormatELF,
	}
	switch arch {
	case ArchitectureX86_64:
		desc.CallConv = CallConvSystemV
	case ArchitectureARM64:
		desc.CallConv = CallConvAAPCS64
	}
	return desc, nil
}

// IsHost reports whether code for d can run in the current process.
func (d Descriptor) IsHost() bool {
	return d.OS == runtime.GOOS && d.Arch.GoArch() == runtime.GOARCH
}

// Triple returns the toolchain target triple, e.g. x86_64-unknown-linux-gnu.
func (d Descriptor) Triple() string {
	arch := string(d.Arch)
	if d.Arch == ArchitectureARM64 {
		arch = "aarch64"
	}
	return fmt.Sprintf("%s-unknown-%s-gnu", arch, d.OS)
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s, %s)", d.Triple(), d.CallConv, d.Flags)
}

func (f Flags) validate() error {
	switch f.OptLevel {
	case OptLevelNone, OptLevelSpeed, OptLevelSpeedAndSize:
		return nil
	case "":
		return &ResolutionError{Setting: "opt_level", Reason: "not set"}
	default:
		return &ResolutionError{Setting: "opt_level", Reason: fmt.Sprintf("invalid value %q", f.OptLevel)}
	}
}
