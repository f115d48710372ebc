package target

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type OptLevel string

const (
	OptLevelNone         OptLevel = "none"
	OptLevelSpeed        OptLevel = "speed"
	OptLevelSpeedAndSize OptLevel = "speed_and_size"
)

// Flags are the target-independent codegen settings shared by the verifier
// and both backends. The zero value is not meaningful; use DefaultFlags or a
// FlagsBuilder.
type Flags struct {
	OptLevel            OptLevel
	EnableVerifier      bool
	IsPIC               bool
	AllowUntrustedLoads bool
}

func DefaultFlags() Flags {
	return Flags{
		OptLevel:       OptLevelNone,
		EnableVerifier: true,
		IsPIC:          true,
	}
}

func (f Flags) String() string {
	return fmt.Sprintf("opt_level=%s enable_verifier=%t is_pic=%t allow_untrusted_loads=%t",
		f.OptLevel, f.EnableVerifier, f.IsPIC, f.AllowUntrustedLoads)
}

// FlagsBuilder collects named settings on top of DefaultFlags. The first
// rejected setting is kept and reported by Finish.
type FlagsBuilder struct {
	flags Flags
	err   error
}

func NewFlagsBuilder() *FlagsBuilder {
	return &FlagsBuilder{flags: DefaultFlags()}
}

var settingNames = []string{"allow_untrusted_loads", "enable_verifier", "is_pic", "opt_level"}

// Set applies a single setting by name.
func (b *FlagsBuilder) Set(name, value string) error {
	err := b.set(name, strings.TrimSpace(value))
	if err != nil && b.err == nil {
		b.err = err
	}
	return err
}

func (b *FlagsBuilder) set(name, value string) error {
	switch name {
	case "opt_level":
		switch OptLevel(value) {
		case OptLevelNone, OptLevelSpeed, OptLevelSpeedAndSize:
			b.flags.OptLevel = OptLevel(value)
			return nil
		}
		return &ResolutionError{Setting: name, Reason: fmt.Sprintf("invalid value %q", value)}
	case "enable_verifier":
		return b.setBool(name, value, &b.flags.EnableVerifier)
	case "is_pic":
		return b.setBool(name, value, &b.flags.IsPIC)
	case "allow_untrusted_loads":
		return b.setBool(name, value, &b.flags.AllowUntrustedLoads)
	default:
		return &ResolutionError{
			Setting: name,
			Reason:  fmt.Sprintf("unknown setting (known: %s)", strings.Join(settingNames, ", ")),
		}
	}
}

func (b *FlagsBuilder) setBool(name, value string, dst *bool) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return &ResolutionError{Setting: name, Reason: fmt.Sprintf("invalid boolean %q", value)}
	}
	*dst = v
	return nil
}

// SetAll applies settings in name order so the reported error is stable.
func (b *FlagsBuilder) SetAll(settings map[string]string) error {
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := b.Set(name, settings[name]); err != nil {
			return err
		}
	}
	return nil
}

func (b *FlagsBuilder) Finish() (Flags, error) {
	if b.err != nil {
		return Flags{}, b.err
	}
	return b.flags, nil
}
