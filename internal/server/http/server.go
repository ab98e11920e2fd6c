package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apiv1 "github.com/rzbill/shardq/api/v1"
	"github.com/rzbill/shardq/internal/runtime"
	"github.com/rzbill/shardq/internal/server/http/controllers"
	"github.com/rzbill/shardq/pkg/log"
)

// Server serves the JSON API, health and metrics endpoints.
type Server struct {
	rt     *runtime.Runtime
	logger log.Logger
	router *chi.Mux
	srv    *http.Server
	lis    net.Listener
}

// New builds the router for rt. Rate limiting and bearer authentication are
// enabled from the runtime's HTTP config.
func New(rt *runtime.Runtime, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.WithComponent("http")
	cfg := rt.Config().HTTP

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/metrics", promhttp.HandlerFor(rt.Registry(), promhttp.HandlerOpts{}).ServeHTTP)

	registry := controllers.NewControllerRegistry(rt, logger)
	r.Group(func(r chi.Router) {
		if cfg.RateLimit > 0 {
			window := cfg.RateWindow
			if window <= 0 {
				window = time.Second
			}
			r.Use(httprate.Limit(cfg.RateLimit, window,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(rateLimited),
			))
		}
		if cfg.JWTSecret != "" {
			r.Use(authMiddleware([]byte(cfg.JWTSecret), logger))
		}
		registry.RegisterAllRoutes(r)
	})

	s := &Server{rt: rt, logger: logger, router: r}
	s.srv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.ToStdLogger(logger),
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. TLS is used when the runtime config names a certificate.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	cfg := s.rt.Config().HTTP
	s.logger.Info("http listening", log.Str("addr", l.Addr().String()), log.F("tls", cfg.CertFile != ""))
	errCh := make(chan error, 1)
	go func() {
		if cfg.CertFile != "" {
			errCh <- s.srv.ServeTLS(l, cfg.CertFile, cfg.KeyFile)
			return
		}
		errCh <- s.srv.Serve(l)
	}()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the bound listener address, or nil before ListenAndServe.
func (s *Server) Addr() net.Addr {
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				log.Str("method", r.Method),
				log.Str("path", r.URL.Path),
				log.Int("status", ww.Status()),
				log.Dur("duration", time.Since(start)),
				log.Str(log.RequestIDKey, middleware.GetReqID(r.Context())),
			)
		})
	}
}

func rateLimited(w http.ResponseWriter, _ *http.Request) {
	writeJSONError(w, http.StatusTooManyRequests, apiv1.CodeRateLimited, "rate limit exceeded")
}
