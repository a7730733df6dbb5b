package root

import (
	"github.com/spf13/cobra"

	"github.com/cudemo/agentd/pkg/version"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agentd version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("agentd version", version.Version)
		},
	}
}
