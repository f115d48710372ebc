package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyrange/jitadd/internal/pipeline"
)

// BuildOptions override the object and linker settings of the configuration.
type BuildOptions struct {
	*RootOptions
	Output      string
	Target      string
	Linker      string
	LinkTimeout time.Duration
	NoLink      bool
}

// NewBuildCommand builds `jitadd build <constant>`.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build <constant>",
		Short: "Write the adder as an ELF object and link it",
		Long: `Write fn(p *int64) int64 { return *p + constant } as a relocatable ELF
object, exported as the configured object symbol, then run the linker on it.

The object file is overwritten on every build.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := pipeline.ParseConstant(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(opts.RootOptions)
			if err != nil {
				return err
			}
			opts.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runBuild(cmd, newPipeline(cmd, opts.RootOptions, cfg), c)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "object file path (default from config)")
	cmd.Flags().StringVar(&opts.Target, "target", "", "object target as os/arch (default host)")
	cmd.Flags().StringVar(&opts.Linker, "linker", "", "linker executable (default from config)")
	cmd.Flags().DurationVar(&opts.LinkTimeout, "link-timeout", 0, "linker timeout (default from config)")
	cmd.Flags().BoolVar(&opts.NoLink, "no-link", false, "write the object without linking")

	return cmd
}

// apply copies only the flags given on the command line over cfg.
func (o *BuildOptions) apply(cmd *cobra.Command, cfg *pipeline.Config) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.ObjectPath = o.Output
	}
	if flags.Changed("target") {
		cfg.Target = o.Target
	}
	if flags.Changed("linker") {
		cfg.Linker.Path = o.Linker
	}
	if flags.Changed("link-timeout") {
		cfg.Linker.Timeout = o.LinkTimeout
	}
	if flags.Changed("no-link") {
		cfg.NoLink = o.NoLink
	}
}

func runBuild(cmd *cobra.Command, p *pipeline.Pipeline, c int64) error {
	out := cmd.OutOrStdout()
	res, err := p.BuildObject(cmd.Context(), c)
	if res != nil {
		fmt.Fprintf(out, "%s was written\n", res.Path)
		if res.Link != nil {
			fmt.Fprintf(out, "link result: %s\n", res.Link)
		}
	}
	return err
}
