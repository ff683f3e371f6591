package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ChainDeploy/internal/auth"
	"ChainDeploy/internal/deploy"
	"ChainDeploy/internal/networks"
	"ChainDeploy/internal/observability/metrics"
	"ChainDeploy/pkg/logger"
)

// Server exposes the network table and the deployment service over HTTP.
type Server struct {
	addr            string
	networks        networks.Configuration
	service         *deploy.Service
	auth            *auth.Service
	logger          *slog.Logger
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithTimeouts sets the listener read and write timeouts and the graceful
// shutdown budget. Zero values keep the defaults.
func WithTimeouts(read, write, shutdown time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
		if shutdown > 0 {
			s.shutdownTimeout = shutdown
		}
	}
}

// WithLogger replaces the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAuth guards the /api/v1 routes with bearer token authentication.
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) {
		s.auth = svc
	}
}

// NewServer builds the API server. service may be nil, in which case the
// deployment routes answer 503.
func NewServer(addr string, cfg networks.Configuration, service *deploy.Service, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		networks:        cfg,
		service:         service,
		logger:          logger.Named("api"),
		readTimeout:     15 * time.Second,
		writeTimeout:    30 * time.Second,
		shutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(observeRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(auth.MiddlewareConfig{
				RequiredPermissions: map[string][]string{"*": {auth.PermissionNetworksRead}},
			}))
			r.Get("/config", s.handleConfig)
			r.Get("/solc", s.handleSolc)
			r.Get("/networks", s.handleListNetworks)
			r.Get("/networks/{name}", s.handleGetNetwork)
		})

		r.Route("/deployments", func(r chi.Router) {
			r.Use(s.auth.Middleware(auth.MiddlewareConfig{
				RequiredPermissions: map[string][]string{
					http.MethodGet:  {auth.PermissionDeploymentsRead},
					http.MethodPost: {auth.PermissionDeploymentsWrite},
				},
				AuditEvent: "deployments",
			}))
			r.Use(s.requireService)
			r.Post("/", s.handleSubmitDeployment)
			r.Get("/", s.handleListDeployments)
			r.Get("/stats", s.handleDeploymentStats)
			r.Get("/{id}", s.handleGetDeployment)
		})
	})
	return r
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("api listening", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext rejects requests once the root context is done.
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
