// Package version provides the command that prints build information
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/iconforge/internal/buildinfo"
)

// Command creates the version command
func Command(info buildinfo.BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build date",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "iconforge %s (built %s)\n", info.GetVersion(), info.GetBuildDate())
		},
	}
}
