// File: cmd/config.go
package cmd

import (
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	var output string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration (file, environment and defaults)",
		Long:  "Print the merged configuration. Secrets such as API keys are never printed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "text" {
				output = "yaml"
			}
			if err := checkFormat(output); err != nil {
				return err
			}
			return encode(cmd.OutOrStdout(), output, a.cfg)
		},
	}
	showCmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format: yaml or json")

	configCmd.AddCommand(showCmd)
	return configCmd
}
