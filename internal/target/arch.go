package target

import "fmt"

type Architecture string

const (
	ArchitectureInvalid Architecture = "invalid"
	ArchitectureX86_64  Architecture = "x86_64"
	ArchitectureARM64   Architecture = "arm64"
)

// ParseArchitecture accepts both Go (amd64, arm64) and toolchain (x86_64,
// aarch64) spellings.
func ParseArchitecture(arch string) (Architecture, error) {
	switch arch {
	case "amd64", "x86_64":
		return ArchitectureX86_64, nil
	case "arm64", "aarch64":
		return ArchitectureARM64, nil
	default:
		return ArchitectureInvalid, fmt.Errorf("unsupported architecture: %s", arch)
	}
}

// GoArch returns the GOARCH spelling of the architecture.
func (a Architecture) GoArch() string {
	switch a {
	case ArchitectureX86_64:
		return "amd64"
	case ArchitectureARM64:
		return "arm64"
	default:
		return ""
	}
}

type CallConv string

const (
	CallConvSystemV CallConv = "system_v"
	CallConvAAPCS64 CallConv = "aapcs64"
)

type ObjectFormat string

const (
	ObjectFormatELF ObjectFormat = "elf"
)
