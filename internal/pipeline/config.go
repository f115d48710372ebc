package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/jitadd/internal/linker"
	"github.com/tinyrange/jitadd/internal/target"
)

type LinkerConfig struct {
	Path    string        `yaml:"path"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config controls both realizations. Every field has a default, so an empty
// file is a valid configuration.
type Config struct {
	// ObjectPath is overwritten on every object build.
	ObjectPath   string `yaml:"object_path"`
	ObjectName   string `yaml:"object_name"`
	JITSymbol    string `yaml:"jit_symbol"`
	ObjectSymbol string `yaml:"object_symbol"`
	// Target selects the object target as os/arch. Empty means the host.
	// The JIT always uses the host.
	Target string `yaml:"target"`
	NoLink bool   `yaml:"no_link"`

	Linker LinkerConfig `yaml:"linker"`
	// Flags are codegen settings by name, e.g. enable_verifier: false.
	Flags map[string]string `yaml:"flags"`
}

func DefaultConfig() Config {
	return Config{
		ObjectPath:   "example.o",
		ObjectName:   "example",
		JITSymbol:    "adder",
		ObjectSymbol: "main",
		Linker: LinkerConfig{
			Path:    linker.DefaultPath,
			Timeout: linker.DefaultTimeout,
		},
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
// Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &IOError{Op: "read config", Path: path, Err: err}
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML configuration data on top of DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode yaml: %w", err)
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.ObjectPath == "" {
		c.ObjectPath = def.ObjectPath
	}
	if c.ObjectName == "" {
		c.ObjectName = def.ObjectName
	}
	if c.JITSymbol == "" {
		c.JITSymbol = def.JITSymbol
	}
	if c.ObjectSymbol == "" {
		c.ObjectSymbol = def.ObjectSymbol
	}
	if c.Linker.Path == "" {
		c.Linker.Path = def.Linker.Path
	}
	if c.Linker.Timeout <= 0 {
		c.Linker.Timeout = def.Linker.Timeout
	}
}

// Validate checks settings that would otherwise fail late.
func (c Config) Validate() error {
	if _, err := c.TargetFlags(); err != nil {
		return err
	}
	if c.Target != "" {
		if _, _, err := splitTarget(c.Target); err != nil {
			return err
		}
	}
	return nil
}

// TargetFlags resolves Flags into codegen settings.
func (c Config) TargetFlags() (target.Flags, error) {
	b := target.NewFlagsBuilder()
	if err := b.SetAll(c.Flags); err != nil {
		return target.Flags{}, err
	}
	return b.Finish()
}

// ObjectTarget resolves the descriptor objects are emitted for.
func (c Config) ObjectTarget() (target.Descriptor, error) {
	flags, err := c.TargetFlags()
	if err != nil {
		return target.Descriptor{}, err
	}
	if c.Target == "" {
		return target.Native(flags)
	}
	goos, goarch, err := splitTarget(c.Target)
	if err != nil {
		return target.Descriptor{}, err
	}
	return target.Lookup(goos, goarch, flags)
}

// Command builds the external linker invocation.
func (c Config) Command() *linker.Command {
	return &linker.Command{
		Path:    c.Linker.Path,
		Args:    append([]string(nil), c.Linker.Args...),
		Timeout: c.Linker.Timeout,
	}
}

func splitTarget(s string) (string, string, error) {
	goos, goarch, ok := strings.Cut(s, "/")
	if !ok || goos == "" || goarch == "" {
		return "", "", &target.ResolutionError{Setting: "target", Reason: fmt.Sprintf("want os/arch, got %q", s)}
	}
	return goos, goarch, nil
}
