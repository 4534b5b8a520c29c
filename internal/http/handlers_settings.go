package http

import (
	"net/http"

	"fiscalflow/internal/core"
	"fiscalflow/internal/log"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.api.GetSettings(r.Context())
	if err != nil {
		s.fail(w, r, err, "Failed to fetch settings", log.OpRead)
		return
	}
	NewJSONResponse(st).Write(w)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.fail(w, r, err, "Failed to update settings", log.OpUpdate)
		return
	}
	partial, err := core.DecodeSettingsPatch(body)
	if err != nil {
		s.fail(w, r, err, "Failed to update settings", log.OpUpdate)
		return
	}
	updated, err := s.api.UpdateSettings(r.Context(), partial)
	if err != nil {
		s.fail(w, r, err, "Failed to update settings", log.OpUpdate)
		return
	}
	NewJSONResponse(updated).Write(w)
}
