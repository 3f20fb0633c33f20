// Package server exposes an analysis context over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KaramelBytes/dqlens-cli/internal/dataset"
	"github.com/KaramelBytes/dqlens-cli/internal/history"
	"github.com/KaramelBytes/dqlens-cli/internal/metrics"
	"github.com/KaramelBytes/dqlens-cli/internal/policy"
	"github.com/KaramelBytes/dqlens-cli/internal/workspace"
)

// DefaultMaxUpload bounds multipart uploads.
const DefaultMaxUpload = 64 << 20

// Options configures a Server.
type Options struct {
	// Workspace names the context in run history.
	Workspace string
	Dataset   dataset.Options
	Policy    policy.Options
	// Schedule is a cron spec for periodic re-checks; empty disables them.
	Schedule  string
	MaxUpload int64
}

// Server serves one analysis context.
type Server struct {
	wc      *workspace.Context
	metrics *metrics.Collector
	history *history.Store
	opt     Options
	cron    *cron.Cron
	router  chi.Router
}

// New wires the routes. m and h may be nil.
func New(wc *workspace.Context, m *metrics.Collector, h *history.Store, opt Options) (*Server, error) {
	if opt.MaxUpload <= 0 {
		opt.MaxUpload = DefaultMaxUpload
	}
	if m == nil {
		m = metrics.NewCollector(nil)
	}
	s := &Server{wc: wc, metrics: m, history: h, opt: opt}
	if opt.Schedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(opt.Schedule, s.recheck); err != nil {
			return nil, eris.Wrapf(err, "server: invalid schedule %q", opt.Schedule)
		}
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Post("/upload-data", s.uploadData)
		r.Post("/upload-policy", s.uploadPolicy)
		r.Post("/analyze-data", s.analyzeData)
		r.Post("/define-rules", s.defineRules)
		r.Get("/rules", s.listRules)
		r.Delete("/rules/{id}", s.deleteRule)
		r.Get("/run-quality-check", s.runQualityCheck)
		r.Get("/dashboard", s.dashboard)
		r.Get("/export-report", s.exportReport)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, running the
// re-check schedule alongside.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.cron != nil {
		s.cron.Start()
		defer s.cron.Stop()
	}
	errc := make(chan error, 1)
	go func() {
		zap.L().Info("listening", zap.String("addr", addr), zap.String("schedule", s.opt.Schedule))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "server: shutdown")
	}
}

// recheck re-runs checks and compliance on the loaded dataset.
func (s *Server) recheck() {
	res, rep, err := s.wc.Recheck()
	if err != nil {
		zap.L().Debug("scheduled re-check skipped", zap.Error(err))
		return
	}
	s.record(context.Background(), history.NewRun(s.opt.Workspace, res, rep))
	zap.L().Info("scheduled re-check", zap.Int("issues", len(res.Issues)))
}

func (s *Server) record(ctx context.Context, run history.Run) {
	if s.history == nil {
		return
	}
	if _, err := s.history.Record(ctx, run); err != nil {
		zap.L().Warn("record run", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
