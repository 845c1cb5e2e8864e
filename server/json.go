package server

import (
	"encoding/json"
	"net/http"
)

const maxBodyBytes = 1 << 20

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected malformed request body")
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "Malformed request body.",
		})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response body")
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"success": false,
		"message": "Internal server error.",
	})
}
