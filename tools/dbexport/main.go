// Package main provides a CLI tool for copying the IconForge generation history
// from SQLite to MySQL or to another SQLite file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (can be set via ldflags during build)
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &Config{}

	cmd := &cobra.Command{
		Use:   "dbexport",
		Short: "Export IconForge generation history from SQLite",
		Long: `A tool for moving the IconForge generation history out of SQLite.

The target is either a MySQL database, used when switching a deployment to
MySQL, or another SQLite file. Record ids are preserved and records already
present in the target are skipped, so an export can be repeated.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, cfg)
		},
	}

	// Source database flags
	cmd.Flags().StringVar(&cfg.SQLitePath, "sqlite-path", "", "Path to source SQLite database file")

	// Target database flags
	cmd.Flags().StringVar(&cfg.TargetSQLite, "target-sqlite", "", "Path to target SQLite database file")
	cmd.Flags().StringVar(&cfg.MySQLHost, "mysql-host", "", "MySQL host")
	cmd.Flags().StringVar(&cfg.MySQLPort, "mysql-port", "3306", "MySQL port")
	cmd.Flags().StringVar(&cfg.MySQLUser, "mysql-user", "iconforge", "MySQL username")
	cmd.Flags().StringVar(&cfg.MySQLPass, "mysql-pass", "", "MySQL password")
	cmd.Flags().StringVar(&cfg.MySQLDatabase, "mysql-database", "iconforge", "MySQL database name")

	// Export options
	cmd.Flags().IntVar(&cfg.BatchSize, "batch-size", 1000, "Number of records per batch")
	cmd.Flags().BoolVar(&cfg.Clean, "clean", false, "Delete all target records before exporting")
	cmd.Flags().BoolVar(&cfg.SkipVerify, "skip-verify", false, "Skip post-export verification")
	cmd.Flags().BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose output")

	// Config file fallback
	cmd.Flags().StringVar(&cfg.ConfigPath, "config", "", "Path to config.yaml (for connection fallback)")

	cmd.Flags().BoolP("version", "v", false, "Print version information")

	return cmd
}

func runExport(cmd *cobra.Command, cfg *Config) error {
	out := cmd.OutOrStdout()

	if v, _ := cmd.Flags().GetBool("version"); v {
		fmt.Fprintf(out, "dbexport version %s\n", version)
		return nil
	}

	if err := cfg.Load(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if cfg.Verbose {
		fmt.Fprintf(out, "Source: %s\n", cfg.SQLitePath)
		fmt.Fprintf(out, "Target: %s\n", cfg.TargetDescription())
		fmt.Fprintf(out, "Batch size: %d\n", cfg.BatchSize)
		fmt.Fprintf(out, "Clean mode: %v\n", cfg.Clean)
	}

	migrator, err := NewMigrator(cfg, out)
	if err != nil {
		return fmt.Errorf("failed to initialize migrator: %w", err)
	}
	defer migrator.Close()

	stats, err := migrator.Run()
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	stats.Print(out)

	if !cfg.SkipVerify {
		fmt.Fprintln(out, "\n--- Verification ---")
		verifier := NewVerifier(migrator.source.DB(), migrator.target.DB(), out)
		if err := verifier.Verify(); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		fmt.Fprintln(out, "Verification passed!")
	}

	return nil
}
