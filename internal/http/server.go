// Package http serves the dinner calendar page and its JSON API.
package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dinners/internal/core"
	"dinners/internal/log"
	"dinners/internal/session"
	"dinners/internal/store"
	appweb "dinners/web"
)

// Options wires the server to the ledger.
type Options struct {
	Store  store.RecordStore
	Roster core.Roster
	// Ready gates /readyz; nil means always ready.
	Ready  func() bool
	Logger *log.Logger

	WriteTimeout    time.Duration
	MaxSessions     int
	SessionIdle     time.Duration
	WritesPerMinute int
	Now             func() time.Time
}

type Server struct {
	http.Server
	templates *template.Template
	sessions  *sessionRegistry
	limiter   *rateLimiter
	metrics   *securityMetrics
	ready     func() bool
	now       func() time.Time
	logger    *log.Logger

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and configures routes, returning
// a ready-to-run server.
func NewServer(addr string, opts Options) (*Server, error) {
	if err := opts.Roster.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Ready == nil {
		opts.Ready = func() bool { return true }
	}
	if opts.MaxSessions == 0 {
		opts.MaxSessions = 256
	}
	if opts.SessionIdle == 0 {
		opts.SessionIdle = 2 * time.Hour
	}
	if opts.WritesPerMinute == 0 {
		opts.WritesPerMinute = 120
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	newSession := func() (*session.Session, error) {
		sopts := []session.Option{session.WithLogger(opts.Logger), session.WithClock(opts.Now)}
		if opts.WriteTimeout > 0 {
			sopts = append(sopts, session.WithWriteTimeout(opts.WriteTimeout))
		}
		return session.New(opts.Store, opts.Roster, sopts...)
	}

	s := &Server{
		templates: t,
		sessions:  newSessionRegistry(newSession, opts.MaxSessions, opts.SessionIdle, opts.Logger),
		limiter:   newRateLimiter(opts.WritesPerMinute),
		metrics:   &securityMetrics{},
		ready:     opts.Ready,
		now:       opts.Now,
		logger:    logger,
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(opts.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.sessions.startCleanup()
	return s, nil
}

func (s *Server) routes(logger *log.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(log.Middleware(logger))
	r.Use(log.RequestIDMiddleware(func(r *http.Request) string { return middleware.GetReqID(r.Context()) }))
	r.Use(log.AccessLog(extractClientIP))
	r.Use(middleware.Recoverer)
	r.Use(s.securityHeaders)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.Handle("/static/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			static.ServeHTTP(w, r)
		}))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/view", s.handleView)
		r.Get("/totals", s.handleTotals)
		r.Get("/detail", s.handleDetail)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/date", s.event(onDate))
			r.Post("/month", s.event(onMonth))
			r.Post("/attendee", s.event(onAttendee))
			r.Post("/price", s.event(onPrice))
			r.Post("/custom-price", s.event(onCustomPrice))
			r.Post("/save", s.event(onSave))
			r.Post("/cancel", s.event(onCancel))
			r.Post("/delete", s.event(onDelete))
			r.Post("/delete/cancel", s.event(onCancelDelete))
			r.Post("/delete/confirm", s.event(onConfirmDelete))
			r.Post("/person", s.event(onPerson))
			r.Post("/detail/close", s.event(onCloseDetail))
			r.Post("/notice/dismiss", s.event(onDismissNotice))
		})
	})
	return r
}

// Shutdown stops accepting requests, then closes every session once their
// pending writes finished.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
		s.sessions.close()
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
