// Package server exposes the auth operations over HTTP with JSON bodies.
package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/eventrian/go-session-service/auth"
	"github.com/eventrian/go-session-service/internal/config"
	"github.com/eventrian/go-session-service/token/access"
)

type Server struct {
	env    string
	mux    *http.ServeMux
	routes []string
	config config.Config
	auth   *auth.Service
	signer access.Signer
	logger zerolog.Logger
}

func New(cfg config.Config, authService *auth.Service, signer access.Signer, logger zerolog.Logger) *Server {
	s := &Server{
		env:    cfg.GetEnv(),
		mux:    http.NewServeMux(),
		config: cfg,
		auth:   authService,
		signer: signer,
		logger: logger.With().Str("component", "server").Logger(),
	}
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}
