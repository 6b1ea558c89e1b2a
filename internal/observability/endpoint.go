package observability

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
	metricspkg "github.com/tphakala/cedar-go/internal/observability/metrics"
)

// Endpoint serves the Prometheus /metrics page.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
	log           logger.Logger
	wg            sync.WaitGroup
}

// NewEndpoint creates an endpoint bound to listenAddress. It does not
// listen until Start is called.
func NewEndpoint(listenAddress string, metrics *Metrics, log logger.Logger) *Endpoint {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Endpoint{
		listenAddress: listenAddress,
		metrics:       metrics,
		log:           log.Module("metrics"),
	}
}

// Start binds the listener and serves in the background until ctx is
// cancelled or Shutdown is called. Bind errors are returned synchronously.
func (e *Endpoint) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return err
	}
	e.listenAddress = ln.Addr().String()
	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: metricspkg.ShutdownTimeout,
	}

	e.wg.Go(func() {
		e.log.Info("metrics endpoint starting", logger.String("address", e.listenAddress))
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("metrics server error", logger.Error(err))
		}
	})

	e.wg.Go(func() {
		<-ctx.Done()
		e.Shutdown()
	})
	return nil
}

// Shutdown stops the server gracefully.
func (e *Endpoint) Shutdown() {
	if e.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		e.log.Error("metrics server shutdown error", logger.Error(err))
	}
}

// Wait blocks until the server goroutines have exited.
func (e *Endpoint) Wait() {
	e.wg.Wait()
}

// Address returns the bound address once Start has succeeded.
func (e *Endpoint) Address() string {
	return e.listenAddress
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
