package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/leshachaplin/appsight/sdk/event"
)

type Server struct {
	mu           sync.Mutex
	public       *http.Server
	closed       bool
	publicRouter *chi.Mux
	routesOnce   sync.Once

	handler    *Handler
	ingestKeys []string
}

func New(handler *Handler, ingestKeys []string) *Server {
	return &Server{
		publicRouter: chi.NewRouter(),

		handler:    handler,
		ingestKeys: ingestKeys,
	}
}

// Router returns the public routes without starting a listener.
func (s *Server) Router(mws ...func(http.Handler) http.Handler) http.Handler {
	s.routesOnce.Do(func() {
		s.registerPublicRoutes(mws...)
	})
	return s.publicRouter
}

func (s *Server) ServePublic(addr string, mws ...func(http.Handler) http.Handler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.public = &http.Server{
		Addr:         addr,
		Handler:      s.Router(mws...),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	public := s.public
	s.mu.Unlock()

	return public.ListenAndServe()
}

func (s *Server) ShutdownPublic(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	public := s.public
	s.mu.Unlock()

	if public == nil {
		return nil
	}
	if err := public.Shutdown(ctx); err != nil {
		return public.Close()
	}
	return nil
}

func (s *Server) registerPublicRoutes(middlewares ...func(http.Handler) http.Handler) {
	s.publicRouter.Use(middleware.RealIP)
	s.publicRouter.Use(middlewares...)
	s.publicRouter.Get("/_/ready", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	s.publicRouter.Group(func(r chi.Router) {
		r.Use(requireIngestKey(s.ingestKeys, s.handler))
		for _, kind := range event.Kinds {
			r.Post(kind.Path(), s.handler.Ingest(kind))
		}
	})
}
