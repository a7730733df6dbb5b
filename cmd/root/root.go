// Package root defines the agentd command tree.
package root

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the top-level command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agentd",
		Short:         "Session orchestration backend for computer-use agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewAPICmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
