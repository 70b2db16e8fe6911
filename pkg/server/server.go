package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	uidlmw "github.com/vango-dev/uidl/pkg/middleware"
	"github.com/vango-dev/uidl/pkg/push"
	"github.com/vango-dev/uidl/pkg/rpc"
	"github.com/vango-dev/uidl/pkg/session"
	"github.com/vango-dev/uidl/pkg/uidl"
)

const tracerName = "github.com/vango-dev/uidl/pkg/server"

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. Every component derives its logger
// from it.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server serves the UIDL protocol over HTTP: bootstrap, synchronous
// requests and push.
type Server struct {
	config   *Config
	factory  session.UIFactory
	sessions *session.Manager

	writer  *uidl.Writer
	rpc     *rpc.Handler
	push    *push.Handler
	metrics *Metrics
	tracer  trace.Tracer

	upgrader websocket.Upgrader
	router   chi.Router

	running    atomic.Bool
	httpServer *http.Server

	logger *slog.Logger
}

// New creates a Server whose UIs are populated by factory. A nil config
// uses DefaultConfig.
func New(config *Config, factory session.UIFactory, opts ...Option) (*Server, error) {
	if factory == nil {
		return nil, ErrNoUIFactory
	}
	if config == nil {
		config = DefaultConfig()
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config:  config,
		factory: factory,
		logger:  slog.Default(),
		tracer:  config.Tracer,
	}
	for _, opt := range opts {
		opt(s)
	}
	base := s.logger
	s.logger = base.With("component", "server")
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}

	for _, warning := range config.Deployment.Warnings() {
		s.logger.Warn("config warning", "warning", warning)
	}

	managerOpts := []session.ManagerOption{session.WithCleanupInterval(config.CleanupInterval)}
	if config.MaxSessions > 0 {
		managerOpts = append(managerOpts, session.WithMaxSessions(config.MaxSessions))
	}
	s.sessions = session.NewManager(config.Deployment, base, managerOpts...)
	s.metrics = NewMetrics(config.Registry, config.MetricsNamespace, s.sessions)

	s.writer = uidl.NewWriter(uidl.WithLogger(base), uidl.WithRecorder(s.metrics))
	s.rpc = rpc.NewHandler(rpc.WithLogger(base), rpc.WithRecorder(s.metrics))
	s.push = push.NewHandler(s.findSession, s.rpc,
		push.WithLogger(base),
		push.WithTracer(s.tracer),
		push.WithRecorder(s.metrics),
		push.WithSystemMessages(config.Deployment.Messages))

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     config.CheckOrigin,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(uidlmw.Tracing(uidlmw.WithTracer(s.tracer), uidlmw.WithFilter(traced)))
	r.Use(uidlmw.Metrics(
		uidlmw.WithRegistry(s.config.Registry),
		uidlmw.WithNamespace(s.config.MetricsNamespace),
	))

	r.Post("/init", s.handleInit)
	r.Post("/UIDL", s.handleUIDL)
	r.Post("/UIDL/", s.handleUIDL)
	r.Get("/PUSH", s.handlePushConnect)
	r.Post("/PUSH", s.handlePushMessage)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.config.Registry, promhttp.HandlerOpts{}))
	return r
}

// traced skips probes and scrapes.
func traced(r *http.Request) bool {
	return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
}

// Handler returns the server's routes for mounting in another router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Config returns the server configuration.
func (s *Server) Config() *Config {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Run listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		ln.Close()
		return ErrAlreadyRunning
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server starting", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	})
	return g.Wait()
}

// Shutdown closes all sessions, which releases held push requests, and
// then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.sessions.ShutdownWithContext(ctx); err != nil {
		s.logger.Warn("session shutdown incomplete", "error", err)
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}
	s.logger.Info("server shutdown complete")
	return nil
}
