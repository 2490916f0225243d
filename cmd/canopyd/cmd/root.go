// Package cmd provides the canopyd command-line entry points.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/canopy-project/canopy/pkg/version"
)

// NewRootCmd builds the root command. canopyd is a service daemon, not a
// general CLI: "serve" is its one real subcommand, alongside "version".
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "canopyd",
		Short:   "Canopy code-index service daemon",
		Version: version.Short(),
	}
	cmd.SetVersionTemplate("canopyd version {{.Version}}\n")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
