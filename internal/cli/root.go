package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Execute runs the swagger2react CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd constructs the root command so tests can exercise the CLI easily.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swagger2react",
		Short: "Generate API sheets and a typed React client from Swagger/OpenAPI specs",
		Long: "swagger2react reads a Swagger 2.0 or OpenAPI 3.x document, writes apis.xlsx and models.xlsx, " +
			"and generates TypeScript models, services and React Query hooks. " +
			"Code inside custom regions survives regeneration.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	// Convert Cobra flag errors (like unknown flags) into friendly usage errors
	// that also show the command's help text.
	cmd.SetFlagErrorFunc(flagError)

	cmd.PersistentFlags().StringP("config", "c", "", "Config file path (YAML or JSON)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging output")
	cmd.PersistentFlags().String("log-file", "", "Also write JSON logs to this file (rotated)")

	g := newGenerateCmd()
	g.SetFlagErrorFunc(flagError)
	cmd.AddCommand(g)

	i := newInitCmd()
	i.SetFlagErrorFunc(flagError)
	cmd.AddCommand(i)

	return cmd
}

func flagError(c *cobra.Command, err error) error {
	return newUsageError(fmt.Sprintf("%v\n\n%s", err, c.UsageString()))
}
