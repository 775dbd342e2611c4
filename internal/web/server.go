// Package web provides the HTTP server and JSON API for the playlist curator.
package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-playlist-curator/internal/auth"
	"github.com/justestif/go-spotify-playlist-curator/internal/catalog"
	"github.com/justestif/go-spotify-playlist-curator/internal/curator"
	"github.com/justestif/go-spotify-playlist-curator/internal/status"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 5 * time.Minute // generation and resolution are slow
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

// CatalogFactory builds the catalog client for a session. onRefresh receives
// refreshed tokens.
type CatalogFactory func(ctx context.Context, session *Session, onRefresh func(*oauth2.Token)) curator.Catalog

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr          string
	Auth          *auth.Authenticator
	Sessions      SessionManager // defaults to an in-memory store
	Curator       *curator.Service
	Hub           *status.Hub
	StaticFS      fs.FS
	Market        string
	SecureCookies bool
	Logger        *zap.Logger
	Catalogs      CatalogFactory // defaults to a Spotify client per request
}

// Server is the HTTP server for the web application.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	log      *zap.Logger
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Auth == nil {
		return nil, errors.New("web: authenticator is required")
	}
	if cfg.Curator == nil {
		return nil, errors.New("web: curator is required")
	}
	if cfg.StaticFS == nil {
		return nil, errors.New("web: static filesystem is required")
	}
	if cfg.Sessions == nil {
		cfg.Sessions = NewSessionStore()
	}
	if cfg.Hub == nil {
		cfg.Hub = status.NewHub()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Catalogs == nil {
		cfg.Catalogs = spotifyCatalogs(cfg.Auth, cfg.Market, cfg.Logger)
	}

	router := chi.NewRouter()
	s := &Server{
		router: router,
		handlers: &Handlers{
			auth:     cfg.Auth,
			sessions: cfg.Sessions,
			curator:  cfg.Curator,
			hub:      cfg.Hub,
			catalogs: cfg.Catalogs,
			static:   cfg.StaticFS,
			cookies:  cookies{secure: cfg.SecureCookies},
			log:      cfg.Logger,
		},
		log: cfg.Logger,
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.StaticFS)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	return s, nil
}

func spotifyCatalogs(a *auth.Authenticator, market string, log *zap.Logger) CatalogFactory {
	return func(ctx context.Context, session *Session, onRefresh func(*oauth2.Token)) curator.Catalog {
		return catalog.New(a.Client(ctx, session.Token, onRefresh),
			catalog.WithMarket(market),
			catalog.WithLogger(log))
	}
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.log))
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes(staticFS fs.FS) {
	h := s.handlers

	fileServer := http.FileServer(http.FS(staticFS))
	s.router.With(middleware.Compress(5)).Handle("/static/*", http.StripPrefix("/static/", fileServer))

	s.router.Get("/", h.Home)

	s.router.Get("/auth/login", h.Login)
	s.router.Get("/callback", h.Callback)
	s.router.Post("/auth/logout", h.Logout)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(h.requireSession)

		// The event stream must not be buffered by the compressor.
		r.Get("/events", h.Events)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Get("/me", h.Me)
			r.Get("/liked", h.Liked)
			r.Get("/genres", h.Genres)
			r.Get("/genres/mixes", h.Mixes)
			r.Post("/chat", h.Chat)

			r.Route("/playlists", func(r chi.Router) {
				r.Post("/generate", h.Generate)
				r.Post("/cached", h.ResolveCached)
				r.Delete("/cached", h.DiscardCached)
				r.Post("/match", h.Match)
				r.Post("/publish", h.Publish)
				r.Get("/history", h.History)
			})
		})
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("starting server", zap.String("url", "http://"+s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals.
func (s *Server) Run() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		s.log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.log.Info("server stopped")
	return nil
}
