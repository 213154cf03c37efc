package web

import (
	"net/http"

	"github.com/wrkportal/sheetengine/internal/core"
)

// handleListMerges returns every merge definition.
func (s *Server) handleListMerges(w http.ResponseWriter, r *http.Request) {
	specs, err := s.service.ListMerges(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if specs == nil {
		specs = []core.MergeSpec{}
	}
	writeJSON(w, r, http.StatusOK, specs)
}

// handleCreateMerge builds or redefines a merged table.
func (s *Server) handleCreateMerge(w http.ResponseWriter, r *http.Request) {
	var spec core.MergeSpec
	if err := s.decodeJSON(w, r, &spec); err != nil {
		respondError(w, r, err)
		return
	}
	result, err := s.service.CreateMerge(r.Context(), spec)
	if err != nil {
		respondError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Cascade != nil {
		status = http.StatusOK
	}
	writeJSON(w, r, status, result)
}

// handleCascadeStatus returns the cascade limiter state.
func (s *Server) handleCascadeStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.CascadeStatus())
}
