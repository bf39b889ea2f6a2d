// Package config provides the command that prints the effective configuration
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/iconforge/internal/conf"
)

// Command creates the config command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Prints the configuration after merging defaults, the config file, environment variables and flags. Secrets are omitted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := settings.ToYAML()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if used := conf.ConfigFileUsed(); used != "" {
				fmt.Fprintf(out, "# config file: %s\n", used)
			}
			_, err = out.Write(data)
			return err
		},
	}

	return cmd
}
