package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-tuneroom/internal/config"
	"github.com/npezzotti/go-tuneroom/internal/provider"
	"github.com/npezzotti/go-tuneroom/internal/server"
	"github.com/npezzotti/go-tuneroom/internal/store"
	"github.com/sirupsen/logrus"
)

// MusicProvider is the slice of the provider client the HTTP layer
// depends on.
type MusicProvider interface {
	AuthorizeURL(state, redirectURL string) string
	ExchangeCode(ctx context.Context, code, redirectURL string) (provider.AccessToken, error)
	Me(ctx context.Context, accessToken string) (provider.User, error)
	Search(ctx context.Context, userId string, tokens store.TokenPair, query string, limit int) ([]provider.ShortTrack, error)
}

type Server struct {
	log            *logrus.Logger
	db             store.Repository
	rs             *server.RoomServer
	provider       MusicProvider
	mux            *http.Server
	signingKey     []byte
	redirectURL    string
	allowedOrigins []string
}

func NewServer(logger *logrus.Logger, rs *server.RoomServer, db store.Repository, mp MusicProvider, cfg *config.Config, statsMux *http.ServeMux) *Server {
	s := &Server{
		log:            logger,
		db:             db,
		rs:             rs,
		provider:       mp,
		signingKey:     cfg.SigningKey,
		redirectURL:    cfg.RedirectURL,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", s.login)
	mux.HandleFunc("GET /authorize", s.authorize)
	mux.HandleFunc("GET /logout", s.logout)
	mux.Handle("GET /api/token", s.authMiddleware(s.token))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.Handle("GET /api/room", s.authMiddleware(s.getRoom))
	mux.Handle("GET /api/search", s.authMiddleware(s.search))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))
	if statsMux != nil {
		mux.Handle("GET /debug/vars", statsMux)
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *Server) Start() error {
	s.log.WithField("addr", s.mux.Addr).Info("starting server")
	return s.mux.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.log.Info("server shutdown complete")
	return nil
}
