// Package server exposes the labeling session over an HTTP JSON API and a
// websocket update stream.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxlabel/voxlabel/internal/app"
	"github.com/voxlabel/voxlabel/internal/health"
	"github.com/voxlabel/voxlabel/internal/observe"
)

// shutdownTimeout bounds graceful HTTP shutdown on exit.
const shutdownTimeout = 10 * time.Second

// Config holds all dependencies for a [Server].
type Config struct {
	// ListenAddr is the TCP address to serve on (e.g., ":8080").
	ListenAddr string

	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// Session is the labeling session facade. Required.
	Session *app.Session

	// Health serves /healthz and /readyz. Optional.
	Health *health.Handler

	// Metrics instruments HTTP handling. Optional.
	Metrics *observe.Metrics

	// MetricsRegistry, when set, is exposed at /metrics.
	MetricsRegistry *prometheus.Registry

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string
}

// Server is the HTTP front end for one labeling session.
type Server struct {
	cfg  Config
	log  *slog.Logger
	sess *app.Session
	hub  *hub
	srv  *http.Server
}

// New creates a Server. Call [Server.Run] to start serving.
func New(cfg Config) *Server {
	s := &Server{
		cfg:  cfg,
		log:  cfg.Logger,
		sess: cfg.Session,
		hub:  newHub(cfg.Logger, cfg.Metrics),
	}
	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           observe.HTTPMiddleware(cfg.Logger, cfg.Metrics, s.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// routes builds the request mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/session", s.handleSessionStatus)
	mux.HandleFunc("POST /api/session/touch", s.handleSessionTouch)
	mux.HandleFunc("POST /api/session/extend", s.handleSessionExtend)
	mux.HandleFunc("POST /api/session/clear", s.handleSessionClear)
	mux.HandleFunc("POST /api/session/dismiss", s.handleSessionDismiss)

	mux.HandleFunc("GET /api/speakers", s.handleSpeakersGet)
	mux.HandleFunc("POST /api/speakers", s.handleSpeakersCommand)

	mux.HandleFunc("GET /api/overrides", s.handleOverridesGet)
	mux.HandleFunc("POST /api/overrides", s.handleOverrideApply)
	mux.HandleFunc("DELETE /api/overrides/{id}", s.handleOverrideRevert)

	mux.HandleFunc("GET /api/segments", s.handleSegmentsGet)
	mux.HandleFunc("POST /api/transcript", s.handleTranscriptImport)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)

	mux.HandleFunc("GET /api/summary", s.handleSummaryGet)
	mux.HandleFunc("POST /api/summary", s.handleSummarize)

	mux.HandleFunc("GET /ws", s.handleWS)

	if s.cfg.Health != nil {
		s.cfg.Health.Register(mux)
	}
	if s.cfg.MetricsRegistry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsRegistry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully. It
// also forwards session updates to connected websocket clients.
func (s *Server) Run(ctx context.Context) error {
	unsubscribe := s.sess.Subscribe(s.hub.broadcast)
	defer unsubscribe()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("http server listening", "addr", s.cfg.ListenAddr, "tls", s.cfg.TLSCertFile != "")
		var err error
		if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
			err = s.srv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			err = s.srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.hub.closeAll()
		return s.srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
