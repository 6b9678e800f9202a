package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kefir-c/difftest"
)

// NewVersionCommand creates the version subcommand.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), difftest.Version)
		},
	}
}
