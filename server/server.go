// Package server exposes a GraphQL executor over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	"github.com/rlch/moviegraph"
	"github.com/rlch/moviegraph/graphql"
)

// maxBodyBytes bounds the size of a POST body.
const maxBodyBytes = 1 << 20

// Outcomes recorded by the request counter.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeInvalid = "invalid"
)

// Server serves GraphQL requests.
type Server struct {
	executor *graphql.Executor
	logger   *zap.Logger
	path     string
	origins  []string

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	requests   *prometheus.CounterVec
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithPath sets the path the GraphQL endpoint is mounted on.
func WithPath(path string) Option {
	return func(s *Server) {
		s.path = path
	}
}

// WithCORSOrigins enables CORS for the given origins.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithRegistry sets where request metrics are registered and what /metrics
// exposes. Defaults to the global Prometheus registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registerer = reg
		s.gatherer = reg
	}
}

// New creates a Server for executor.
func New(executor *graphql.Executor, opts ...Option) (*Server, error) {
	s := &Server{
		executor:   executor,
		logger:     zap.NewNop(),
		path:       "/graphql",
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviegraph",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of GraphQL requests by operation type and outcome",
	}, []string{"operation", "outcome"})

	err := s.registerer.Register(s.requests)
	if err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("server: failed to register metrics: %w", err)
		}

		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("server: failed to register metrics: %w", err)
		}

		s.requests = existing
	}

	return s, nil
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(Logger(s.logger))

	if len(s.origins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	router.Get("/healthz", s.healthz)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	router.Get(s.path, s.serveGet)
	router.Post(s.path, s.servePost)

	return router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)

	go func() {
		s.logger.Info("Listening", zap.String("addr", addr), zap.String("path", s.path))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server: failed to listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("server: failed to shut down: %w", err)
	}

	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) servePost(w http.ResponseWriter, r *http.Request) {
	var req graphql.Request

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	err := dec.Decode(&req)
	if err != nil {
		s.reject(w, http.StatusBadRequest, "invalid request body: "+err.Error())

		return
	}

	s.execute(w, r, req)
}

func (s *Server) serveGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := graphql.Request{
		Query:         q.Get("query"),
		OperationName: q.Get("operationName"),
	}

	if raw := q.Get("variables"); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()

		err := dec.Decode(&req.Variables)
		if err != nil {
			s.reject(w, http.StatusBadRequest, "invalid variables: "+err.Error())

			return
		}
	}

	if s.executor.OperationType(req) == "mutation" {
		w.Header().Set("Allow", http.MethodPost)
		s.reject(w, http.StatusMethodNotAllowed, "mutations are only accepted over POST")

		return
	}

	s.execute(w, r, req)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, req graphql.Request) {
	if req.Query == "" {
		s.reject(w, http.StatusBadRequest, "missing query")

		return
	}

	operation := s.executor.OperationType(req)
	resp := s.executor.Execute(r.Context(), req)

	outcome := OutcomeOK

	switch {
	case !resp.Executed():
		outcome = OutcomeInvalid
	case len(resp.Errors) > 0:
		outcome = OutcomeError
	}

	if operation == "" {
		operation = "unknown"
	}

	s.requests.WithLabelValues(operation, outcome).Inc()

	writeJSON(w, http.StatusOK, resp)
}

// reject answers a request that never reached the executor.
func (s *Server) reject(w http.ResponseWriter, status int, msg string) {
	s.requests.WithLabelValues("unknown", OutcomeInvalid).Inc()

	writeJSON(w, status, map[string]any{
		"errors": gqlerror.List{graphql.ClassifyError(moviegraph.InvalidArgument(msg))},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
