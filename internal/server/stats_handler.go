package server

import (
	"net/http"

	"github.com/zhaochy1990/auth/internal/auth"
	"github.com/zhaochy1990/auth/internal/httputil"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.authSvc.GetStats(r.Context())
	if err != nil {
		auth.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
