// Package server composes the site, the JSON API and the operational
// endpoints behind one http.Server and runs it next to the background jobs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"inmoelegance/internal/adapters/api"
	"inmoelegance/internal/blob"
)

// Job is a background task bound to the server lifetime, such as the export
// worker. It returns when ctx is cancelled.
type Job func(ctx context.Context) error

// Options configures a Server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	API  http.Handler
	Site http.Handler
	// Media serves uploaded images under /media/. Nil disables the route.
	Media blob.Store

	// Registry collects HTTP metrics. MetricsPath exposes it; an empty path
	// keeps it private.
	Registry    *prometheus.Registry
	MetricsPath string
	Gzip        bool

	Logger *zap.Logger
	Jobs   []Job
}

// Server is the composed HTTP surface.
type Server struct {
	opts    Options
	logger  *zap.Logger
	metrics *httpMetrics
	handler http.Handler
}

// New builds the router and registers the HTTP collectors.
func New(opts Options) (*Server, error) {
	if opts.API == nil || opts.Site == nil {
		return nil, errors.New("server: api and site handlers are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	metrics, err := newHTTPMetrics(opts.Registry)
	if err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}
	s := &Server{opts: opts, logger: opts.Logger.Named("http"), metrics: metrics}

	mux := http.NewServeMux()
	mux.Handle(api.Prefix+"/", opts.API)
	if opts.Media != nil {
		mux.Handle("GET /media/{key...}", mediaHandler(opts.Media, s.logger))
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if opts.MetricsPath != "" {
		mux.Handle("GET "+opts.MetricsPath, promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", opts.Site)

	var h http.Handler = mux
	if opts.Gzip {
		h = gzhttp.GzipHandler(h)
	}
	s.handler = s.instrument(h)
	return s, nil
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler { return s.handler }

// Run listens on Options.Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and runs the jobs. Cancelling ctx shuts the
// server down gracefully; the first failure stops everything.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.opts.WriteTimeout,
		ErrorLog:          zap.NewStdLog(s.logger),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	for _, job := range s.opts.Jobs {
		g.Go(func() error { return job(gctx) })
	}
	return g.Wait()
}
