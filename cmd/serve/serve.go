// Package serve provides the command that runs the HTTP API server
package serve

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/iconforge/internal/api"
	"github.com/tphakala/iconforge/internal/app"
	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/imagegen"
	"github.com/tphakala/iconforge/internal/logger"
	"github.com/tphakala/iconforge/internal/observability"
)

// tokenCheckTimeout bounds the startup Replicate token check
const tokenCheckTimeout = 10 * time.Second

// Command creates the serve command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the HTTP API server, serving the generation endpoints and optionally the built frontend.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings)
		},
	}

	if err := setupFlags(cmd); err != nil {
		cobra.CheckErr(err)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("host", "", "Listen host, empty for all interfaces")
	cmd.Flags().IntP("port", "p", 0, "Listen port")
	cmd.Flags().String("static-dir", "", "Directory with the built frontend to serve")
	cmd.Flags().Bool("telemetry", false, "Enable Prometheus metrics")
	cmd.Flags().String("listen", "", "Separate listen address for the metrics endpoint")

	bindings := map[string]string{
		"host":       "webserver.host",
		"port":       "webserver.port",
		"static-dir": "webserver.staticdir",
		"telemetry":  "telemetry.enabled",
		"listen":     "telemetry.listen",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}

	return nil
}

func run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("main")
	log.Info("starting IconForge",
		logger.String("version", settings.Version),
		logger.String("build_date", settings.BuildDate))

	a := app.New(settings, log)
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("shutdown completed with errors", logger.Error(err))
		}
	}()

	if err := a.OpenServices(ctx); err != nil {
		return err
	}

	checkToken(ctx, a.Provider, log)

	if settings.Telemetry.Enabled && settings.Telemetry.Listen != "" {
		endpoint, err := observability.NewEndpoint(settings, a.Metrics, logger.Global().Module("telemetry"))
		if err != nil {
			return err
		}
		if err := endpoint.Start(); err != nil {
			return err
		}
		defer func() {
			if err := endpoint.Shutdown(context.WithoutCancel(ctx)); err != nil {
				log.Warn("telemetry endpoint shutdown failed", logger.Error(err))
			}
		}()
	}

	server, err := api.New(settings,
		api.WithLogger(logger.Global().Module("api")),
		api.WithGenerationService(a.Generations),
		api.WithIconSetGenerator(a.IconSets),
		api.WithMetrics(a.Metrics))
	if err != nil {
		return err
	}

	log.Info("API available",
		logger.String("url", fmt.Sprintf("http://localhost:%d/api", settings.WebServer.Port)))

	return server.StartWithGracefulShutdown(ctx)
}

// checkToken warns when Replicate rejects the configured token. The server
// still starts so the history endpoints remain usable.
func checkToken(ctx context.Context, provider *imagegen.ReplicateProvider, log logger.Logger) {
	ctx, cancel := context.WithTimeout(ctx, tokenCheckTimeout)
	defer cancel()

	if !provider.ValidateAPIKey(ctx) {
		log.Warn("Replicate API token could not be validated, image generation may fail")
	}
}
