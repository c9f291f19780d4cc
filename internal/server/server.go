// Package server exposes the device over HTTP: health, Prometheus metrics,
// engine status, manual triggers, mode switching, the run history, stored
// artifacts and a websocket feed of phase events.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/fpang/poetry-camera/internal/engine"
	"github.com/fpang/poetry-camera/internal/feedback"
	"github.com/fpang/poetry-camera/internal/store"
	"github.com/fpang/poetry-camera/internal/trigger"
)

// Engine is the part of the engine the server drives.
type Engine interface {
	Status() engine.Status
	Mode() trigger.Mode
	SetMode(trigger.Mode) bool
}

// Display returns the latest rendered status line.
type Display interface {
	Latest() feedback.Status
}

// Publisher accepts trigger events.
type Publisher interface {
	Publish(trigger.Event)
}

// Device describes one resolved backend.
type Device struct {
	Backend   string `json:"backend"`
	Simulated bool   `json:"simulated"`
}

// Options wires the server. Hub, Ledger and ContentDir are optional.
type Options struct {
	Addr             string
	Engine           Engine
	Display          Display
	Triggers         Publisher
	Ledger           store.Ledger
	ContentDir       string
	Hub              *Hub
	Devices          func() map[string]Device
	OnModeChange     func(trigger.Mode)
	TriggerPerMinute int
}

// Server is the HTTP front end.
type Server struct {
	opts Options
	srv  *http.Server
}

// New creates a server.
func New(opts Options) *Server {
	s := &Server{opts: opts}
	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(withLogging, withCORS)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.With(triggerLimit(s.opts.TriggerPerMinute)).Post("/trigger", s.handleTrigger)
		r.Get("/mode", s.handleGetMode)
		r.Post("/mode", s.handleSetMode)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})

	if s.opts.ContentDir != "" {
		files := http.StripPrefix("/content/", http.FileServer(http.Dir(s.opts.ContentDir)))
		r.Get("/content/*", func(w http.ResponseWriter, r *http.Request) {
			if containsPathTraversal(r.URL.Path) {
				httpError(w, http.StatusBadRequest, "invalid path")
				return
			}
			files.ServeHTTP(w, r)
		})
	}
	if s.opts.Hub != nil {
		r.Get("/ws", s.opts.Hub.ServeWS)
	}
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.opts.Addr).Msg("Starting HTTP server")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down HTTP server")
	if s.opts.Hub != nil {
		s.opts.Hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func triggerLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			httpError(w, http.StatusTooManyRequests, "rate_limit_exceeded")
		}),
	)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("API request")
		}
	})
}

// withCORS allows browser dashboards served from localhost.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
