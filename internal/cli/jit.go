package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyrange/jitadd/internal/pipeline"
)

// NewJITCommand builds `jitadd jit <runtime> <constant>`.
func NewJITCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "jit <runtime> <constant>",
		Short:         "Compile the adder in-process and call it",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := pipeline.ParseOperands(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			return runJIT(cmd, newPipeline(cmd, rootOpts, cfg), ops)
		},
	}
}

func runJIT(cmd *cobra.Command, p *pipeline.Pipeline, ops pipeline.Operands) error {
	result, err := p.RunJIT(cmd.Context(), ops)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "result: %d\n", result)
	return nil
}
