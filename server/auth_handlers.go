package server

import (
	"net/http"

	"github.com/eventrian/go-session-service/auth"
)

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request auth.LoginRequest
		if !s.readJSON(w, r, &request) {
			return
		}

		response, err := s.auth.Login(r.Context(), request)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if !response.Success {
			s.writeJSON(w, http.StatusUnauthorized, response)
			return
		}
		s.writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request auth.RegisterRequest
		if !s.readJSON(w, r, &request) {
			return
		}

		response, err := s.auth.Register(r.Context(), request)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if !response.Success {
			s.writeJSON(w, http.StatusBadRequest, response)
			return
		}
		s.writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request auth.RefreshRequest
		if !s.readJSON(w, r, &request) {
			return
		}

		response, err := s.auth.Refresh(r.Context(), request)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if !response.Success {
			s.writeJSON(w, http.StatusUnauthorized, response)
			return
		}
		s.writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request auth.LogoutRequest
		if !s.readJSON(w, r, &request) {
			return
		}

		response, err := s.auth.Logout(r.Context(), request)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if !response.Success {
			s.writeJSON(w, http.StatusBadRequest, response)
			return
		}
		s.writeJSON(w, http.StatusOK, response)
	}
}

// ProtectedHandler answers on a bearer-guarded route so clients and tests can
// confirm an access credential end to end.
func (s *Server) ProtectedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	}
}
