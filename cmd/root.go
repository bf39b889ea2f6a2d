// Package cmd defines the iconforge command line interface
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/iconforge/cmd/config"
	"github.com/tphakala/iconforge/cmd/generate"
	"github.com/tphakala/iconforge/cmd/generations"
	"github.com/tphakala/iconforge/cmd/migrate"
	"github.com/tphakala/iconforge/cmd/serve"
	"github.com/tphakala/iconforge/cmd/version"
	"github.com/tphakala/iconforge/internal/app"
	"github.com/tphakala/iconforge/internal/buildinfo"
	"github.com/tphakala/iconforge/internal/conf"
)

// RootCommand creates and returns the root command. Settings are loaded before
// any subcommand runs and shared with every subcommand through settings.
func RootCommand(info *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "iconforge",
		Short:         "IconForge AI icon generator",
		Long:          "Generate icon sets and images with a hosted image model and keep a history of every generation.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		cobra.CheckErr(err)
	}

	versionCmd := version.Command(info)

	rootCmd.AddCommand(
		serve.Command(settings),
		generate.Command(settings),
		generations.Command(settings),
		migrate.Command(settings),
		config.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// The version command works without a config file
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(settings, configFile, info)
	}

	return rootCmd
}

// initialize loads the configuration after flags are parsed, so bound flags
// take precedence over the config file and environment.
func initialize(settings *conf.Settings, configFile string, info *buildinfo.Context) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	loaded.Version = info.GetVersion()
	loaded.BuildDate = info.GetBuildDate()
	*settings = *loaded

	if _, err := app.SetupLogging(settings); err != nil {
		return err
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config file (default searches ./config.yaml, ~/.config/iconforge, /etc/iconforge)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
