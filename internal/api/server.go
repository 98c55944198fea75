package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/click-redirector/internal/codec"
	"github.com/JakeFAU/click-redirector/internal/metrics"
	"github.com/JakeFAU/click-redirector/internal/pages"
	"github.com/JakeFAU/click-redirector/internal/policy/ratelimit"
	"github.com/JakeFAU/click-redirector/internal/redirect"
	"github.com/JakeFAU/click-redirector/internal/store"
)

const (
	liveTrafficPath = "/ws/live-traffic"
	readyTimeout    = 2 * time.Second
	handlerTimeout  = 10 * time.Second
)

// Redirector resolves visits and decodes the intermediate hop pages.
type Redirector interface {
	Resolve(ctx context.Context, v redirect.Visit) (redirect.Outcome, error)
	StealthPage(dest string) (pages.Stealth, error)
	VideoPage(dest string) (pages.Video, error)
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server. Redirects is required.
type Options struct {
	Redirects   Redirector
	StealthPath string
	VideoPath   string
	// Live serves the WebSocket feed; the route is omitted when nil.
	Live http.Handler
	// Metrics defaults to metrics.Handler().
	Metrics http.Handler
	// Ready is consulted by /readyz.
	Ready map[string]Pinger
	// Limiter guards /{slug} when non-nil.
	Limiter *ratelimit.Limiter
	// VideoDir is served at /videos/ when set.
	VideoDir string
	Logger   *zap.Logger
}

// Server wires HTTP handlers to the redirect service.
type Server struct {
	router    chi.Router
	redirects Redirector
	ready     map[string]Pinger
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) (*Server, error) {
	if opts.Redirects == nil {
		return nil, errors.New("api: redirect service is required")
	}
	if opts.StealthPath == "" {
		opts.StealthPath = redirect.DefaultStealthPath
	}
	if opts.VideoPath == "" {
		opts.VideoPath = redirect.DefaultVideoPath
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Handler()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		redirects: opts.Redirects,
		ready:     opts.Ready,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(chimw.RealIP)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", opts.Metrics)
	if opts.Live != nil {
		r.Method(http.MethodGet, liveTrafficPath, opts.Live)
	}
	if opts.VideoDir != "" {
		r.Handle("/videos/*", http.StripPrefix("/videos/", http.FileServer(http.Dir(opts.VideoDir))))
	}

	r.Group(func(r chi.Router) {
		r.Use(otelhttp.NewMiddleware("redirector",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		))
		r.Use(timeoutMiddleware(handlerTimeout))
		r.Use(noReferrerMiddleware)
		r.Get(opts.StealthPath, s.stealth)
		r.Get(opts.VideoPath, s.video)
		r.Group(func(r chi.Router) {
			if opts.Limiter != nil {
				r.Use(opts.Limiter.Middleware("slug"))
			}
			r.Get("/{slug}", s.resolveLink)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writePage(w, s.logger, http.StatusNotFound, func(w io.Writer) error {
			return pages.RenderError(w, http.StatusNotFound)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	failed := map[string]string{}
	for name, p := range s.ready {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = "unavailable"
		}
	}
	if len(failed) > 0 {
		writeJSON(w, s.logger, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "failed": failed})
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) resolveLink(w http.ResponseWriter, r *http.Request) {
	out, err := s.redirects.Resolve(r.Context(), redirect.Visit{
		Slug:      chi.URLParam(r, "slug"),
		UserAgent: r.UserAgent(),
		ClientIP:  r.RemoteAddr,
		Host:      r.Host,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	switch out.Kind {
	case redirect.KindOpenGraph:
		writePage(w, s.logger, http.StatusOK, func(w io.Writer) error {
			return pages.RenderOpenGraph(w, out.OpenGraph)
		})
	default:
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, out.Location, http.StatusFound)
	}
}

func (s *Server) stealth(w http.ResponseWriter, r *http.Request) {
	page, err := s.redirects.StealthPage(r.URL.Query().Get("dest"))
	if err != nil {
		metrics.ObserveDecodeError("stealth")
		s.fail(w, r, err)
		return
	}
	writePage(w, s.logger, http.StatusOK, func(w io.Writer) error {
		return pages.RenderStealth(w, page)
	})
}

func (s *Server) video(w http.ResponseWriter, r *http.Request) {
	page, err := s.redirects.VideoPage(r.URL.Query().Get("dest"))
	if err != nil {
		metrics.ObserveDecodeError("video")
		s.fail(w, r, err)
		return
	}
	writePage(w, s.logger, http.StatusOK, func(w io.Writer) error {
		return pages.RenderVideo(w, page)
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
	}
	writePage(w, s.logger, status, func(w io.Writer) error {
		return pages.RenderError(w, status)
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, codec.ErrMalformedDestination), errors.Is(err, codec.ErrMalformedToken):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writePage renders into a buffer first so a template failure still yields a
// clean 500.
func writePage(w http.ResponseWriter, logger *zap.Logger, status int, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		logger.Error("render page failed", zap.Error(err))
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(http.StatusText(status))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		logger.Debug("write page failed", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

// Serve runs srv until ctx is canceled, then shuts it down within grace.
func Serve(ctx context.Context, srv *http.Server, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
