// Package cli implements the jitadd command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/tinyrange/jitadd/internal/pipeline"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	ConfigPath string
	Debug      bool
	LogFormat  string // "auto" | "text" | "json"
	PrintIR    bool

	log *slog.Logger
}

var validLogFormats = []string{"auto", "text", "json"}

// NewRootCommand builds `jitadd <runtime> <constant>`, which runs the JIT and
// then writes and links the object, plus the jit and build subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "jitadd <runtime> <constant>",
		Short: "Compile an adder in-process and as an ELF object",
		Long: `jitadd builds fn(p *int64) int64 { return *p + constant }.

It runs the function in-process with a pointer to the runtime operand, then
writes the same function as a relocatable object and hands it to the linker.

Operands may be negative, e.g. jitadd -5 5.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			opts.log = log
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAll(cmd, opts, args)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "auto", "log format (auto|text|json)")
	cmd.PersistentFlags().BoolVar(&opts.PrintIR, "print-ir", true, "print the IR of every built function")

	cmd.AddCommand(NewJITCommand(opts))
	cmd.AddCommand(NewBuildCommand(opts))

	return cmd
}

// Execute runs the command line with args, writing results to stdout and
// logs to stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := NewRootCommand()
	cmd.SetArgs(positionalArgs(cmd, args))
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

func runAll(cmd *cobra.Command, opts *RootOptions, args []string) error {
	ops, err := pipeline.ParseOperands(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	p := newPipeline(cmd, opts, cfg)

	if err := runJIT(cmd, p, ops); err != nil {
		return err
	}
	return runBuild(cmd, p, ops.Constant)
}

func loadConfig(opts *RootOptions) (pipeline.Config, error) {
	if opts.ConfigPath == "" {
		return pipeline.DefaultConfig(), nil
	}
	return pipeline.LoadConfig(opts.ConfigPath)
}

func newPipeline(cmd *cobra.Command, opts *RootOptions, cfg pipeline.Config) *pipeline.Pipeline {
	popts := []pipeline.Option{pipeline.WithLogger(opts.logger())}
	if opts.PrintIR {
		popts = append(popts, pipeline.WithDiagnostics(cmd.OutOrStdout()))
	}
	return pipeline.New(cfg, popts...)
}

func (o *RootOptions) logger() *slog.Logger {
	if o.log == nil {
		return slog.Default()
	}
	return o.log
}

// newLogger picks a text handler when w is a terminal and JSON otherwise,
// unless the format is forced.
func newLogger(opts *RootOptions, w io.Writer) (*slog.Logger, error) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	format := opts.LogFormat
	if format == "" {
		format = "auto"
	}
	switch format {
	case "auto":
		if isTerminal(w) {
			return slog.New(slog.NewTextHandler(w, hopts)), nil
		}
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be one of %v", format, validLogFormats)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// positionalArgs moves integer operands behind "--" when any of them is
// negative, so pflag does not read -5 as a shorthand flag. Values of flags
// that take an argument stay with their flag.
func positionalArgs(root *cobra.Command, args []string) []string {
	if slices.Contains(args, "--") {
		return args
	}
	var rest []string
	for _, a := range args {
		if !isInteger(a) {
			rest = append(rest, a)
		}
	}
	cmd, _, err := root.Find(rest)
	if err != nil {
		return args
	}
	takesValue := func(name string, short bool) bool {
		for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags(), cmd.InheritedFlags()} {
			var f *pflag.Flag
			if short {
				f = fs.ShorthandLookup(name)
			} else {
				f = fs.Lookup(name)
			}
			if f != nil {
				return f.NoOptDefVal == ""
			}
		}
		return false
	}

	var kept, operands []string
	negative := false
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case isInteger(a):
			operands = append(operands, a)
			negative = negative || strings.HasPrefix(a, "-")
		case strings.HasPrefix(a, "--") && !strings.Contains(a, "="):
			kept = append(kept, a)
			if takesValue(a[2:], false) && i+1 < len(args) {
				i++
				kept = append(kept, args[i])
			}
		case len(a) == 2 && a[0] == '-':
			kept = append(kept, a)
			if takesValue(a[1:], true) && i+1 < len(args) {
				i++
				kept = append(kept, args[i])
			}
		default:
			kept = append(kept, a)
		}
	}
	if !negative {
		return args
	}
	return append(append(kept, "--"), operands...)
}

// isInteger reports whether s looks like a base-10 integer. Range errors are
// left to operand parsing.
func isInteger(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
