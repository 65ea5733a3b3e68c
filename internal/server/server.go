// Package server assembles the HTTP router and runs the listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/servetable/servetable/internal/config"
	"github.com/servetable/servetable/internal/httputil"
)

// Router is implemented by every domain handler.
type Router interface {
	Routes() chi.Router
}

// Pinger reports database liveness for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the pieces the server mounts. Any field may be nil.
type Deps struct {
	DB       Pinger
	Guest    Router
	OTP      Router
	Payments Router
	// OnShutdown runs after the listener stops accepting requests.
	OnShutdown []func()
}

// Server is the servetable HTTP server.
type Server struct {
	cfg       *config.Config
	router    *chi.Mux
	http      *http.Server
	logger    *slog.Logger
	deps      Deps
	startTime time.Time
}

// New creates a Server with middleware and routes configured.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Server.CORSAllowedOrigins))

	s := &Server{cfg: cfg, router: r, logger: logger, deps: deps, startTime: time.Now()}

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			if deps.Guest != nil || deps.OTP != nil {
				r.Route("/guest", func(r chi.Router) {
					if deps.OTP != nil {
						r.Mount("/otp", deps.OTP.Routes())
					}
					if deps.Guest != nil {
						r.Mount("/", deps.Guest.Routes())
					}
				})
			}
		})
		// Webhook senders choose their own content type, and the body must
		// reach the signature check untouched.
		if deps.Payments != nil {
			r.Mount("/payments", deps.Payments.Routes())
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, "not found")
	})
	return s
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// StartWithReady listens on the configured address, closes ready once the
// port is bound, then serves until Shutdown.
func (s *Server) StartWithReady(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.serve(ln, ready, "http")
}

// StartTLSWithReady serves on a pre-built TLS listener.
func (s *Server) StartTLSWithReady(ln net.Listener, ready chan<- struct{}) error {
	return s.serve(ln, ready, "https")
}

func (s *Server) serve(ln net.Listener, ready chan<- struct{}, scheme string) error {
	s.http = s.newHTTPServer()
	s.logger.Info("server starting", "address", ln.Addr().String(), "scheme", scheme)
	close(ready)
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server within server.shutdown_timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := time.Duration(s.cfg.Server.ShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("shutting down server", "timeout", timeout)
	var err error
	if s.http != nil {
		err = s.http.Shutdown(shutdownCtx)
	}
	for _, fn := range s.deps.OnShutdown {
		fn()
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"uptime": int(time.Since(s.startTime).Seconds()),
	}
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			s.logger.Warn("health check: database unreachable", "error", err)
			resp["status"] = "degraded"
			resp["database"] = "unreachable"
			httputil.WriteJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["database"] = "ok"
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
