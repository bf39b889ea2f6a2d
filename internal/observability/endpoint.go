package observability

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
	metricspkg "github.com/tphakala/iconforge/internal/observability/metrics"
)

// Endpoint serves /metrics on a dedicated listener, separate from the API.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
	log           logger.Logger
	wg            sync.WaitGroup
}

// NewEndpoint creates a metrics endpoint. It returns an error if telemetry is
// disabled or no listen address is configured.
func NewEndpoint(settings *conf.Settings, metrics *Metrics, log logger.Logger) (*Endpoint, error) {
	if !settings.Telemetry.Enabled || settings.Telemetry.Listen == "" {
		return nil, errors.Newf("telemetry endpoint not enabled in settings").
			Component("observability").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Endpoint{
		listenAddress: settings.Telemetry.Listen,
		metrics:       metrics,
		log:           log,
	}, nil
}

// Start binds the listener and serves in the background
func (e *Endpoint) Start() error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryNetwork).
			Context("listen", e.listenAddress).
			Build()
	}

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	e.wg.Go(func() {
		e.log.Info("telemetry endpoint starting", logger.String("address", ln.Addr().String()))
		if err := e.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			e.log.Error("telemetry HTTP server error", logger.Error(err))
		}
	})
	return nil
}

// Shutdown stops the server and waits for it to exit
func (e *Endpoint) Shutdown(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, metricspkg.ShutdownTimeout)
	defer cancel()

	err := e.server.Shutdown(ctx)
	e.wg.Wait()
	return err
}

// Addr returns the configured listen address
func (e *Endpoint) Addr() string {
	return e.listenAddress
}
