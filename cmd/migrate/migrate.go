// Package migrate provides the command that creates or updates the database schema
package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/iconforge/internal/app"
	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/logger"
)

// Command creates the migrate command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long:  "Runs the schema migrations against the configured SQLite or MySQL database and exits.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app.New(settings, logger.Global().Module("main"))
			if err := a.OpenStore(); err != nil {
				return err
			}

			backend := "SQLite"
			if a.Store.IsMySQL() {
				backend = "MySQL"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s database schema is up to date (%s)\n", backend, a.Store.Path())

			return a.Close()
		},
	}

	return cmd
}
