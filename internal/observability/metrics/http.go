package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every ChainDeploy collector.
var Registry = prometheus.NewRegistry()

var (
	factory = promauto.With(Registry)

	httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaindeploy_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"handler", "method", "code"},
	)

	httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaindeploy_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"handler", "method"},
	)

	providerConstructions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaindeploy_provider_constructions_total",
			Help: "Provider factory invocations by network and outcome.",
		},
		[]string{"network", "outcome"},
	)

	deploymentsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaindeploy_deployments_total",
			Help: "Finished deployment jobs by network and status.",
		},
		[]string{"network", "status"},
	)

	deploymentDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaindeploy_deployment_duration_seconds",
			Help:    "Time from claim to result for a deployment attempt.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"network"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveProviderConstruction counts one provider factory invocation.
func ObserveProviderConstruction(network string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	providerConstructions.WithLabelValues(network, outcome).Inc()
}

// ObserveDeployment records a finished deployment attempt.
func ObserveDeployment(network, status string, duration time.Duration) {
	deploymentsTotal.WithLabelValues(network, status).Inc()
	deploymentDuration.WithLabelValues(network).Observe(duration.Seconds())
}

// Handler exposes the registry in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
