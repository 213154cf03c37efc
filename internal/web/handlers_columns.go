package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleGetSettings returns the stored settings record of a table.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.service.GetSettings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, settings)
}

// handleSetColumnType overrides the type and format of one column.
func (s *Server) handleSetColumnType(w http.ResponseWriter, r *http.Request) {
	index, err := columnIndex(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		DataType string `json:"dataType"`
		Format   string `json:"format"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	meta, err := s.service.SetColumnType(r.Context(), chi.URLParam(r, "id"), index, req.DataType, req.Format)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, meta)
}

// handleSetColumnWidth stores the display width of one column.
func (s *Server) handleSetColumnWidth(w http.ResponseWriter, r *http.Request) {
	index, err := columnIndex(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Width int `json:"width"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	settings, err := s.service.SetColumnWidth(r.Context(), chi.URLParam(r, "id"), index, req.Width)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, settings)
}

type formulaRequest struct {
	Name    string `json:"name"`
	Formula string `json:"formula"`
}

// handleAddCalculated appends a calculated column and returns the new view.
func (s *Server) handleAddCalculated(w http.ResponseWriter, r *http.Request) {
	var req formulaRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	opened, err := s.service.AddCalculatedField(r.Context(), chi.URLParam(r, "id"), req.Name, req.Formula)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, opened)
}

// handleRemoveCalculated drops a calculated column.
func (s *Server) handleRemoveCalculated(w http.ResponseWriter, r *http.Request) {
	opened, err := s.service.RemoveCalculatedField(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, opened)
}

// handlePreviewFormula evaluates a formula on the first rows without saving.
func (s *Server) handlePreviewFormula(w http.ResponseWriter, r *http.Request) {
	var req formulaRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	preview, err := s.service.PreviewFormula(r.Context(), chi.URLParam(r, "id"), req.Formula)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, preview)
}

// handleValidateFormula reports whether a formula can be added to a table.
// A formula that does not compile is a normal answer, not a request error.
func (s *Server) handleValidateFormula(w http.ResponseWriter, r *http.Request) {
	var req formulaRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	err := s.service.ValidateFormula(r.Context(), chi.URLParam(r, "id"), req.Formula)
	if err != nil && statusFor(err) != http.StatusBadRequest {
		respondError(w, r, err)
		return
	}

	resp := map[string]any{"valid": err == nil}
	if err != nil {
		msg := userMessage(err, http.StatusBadRequest)
		resp["error"] = err.Error()
		resp["code"] = msg.Code
	}
	writeJSON(w, r, http.StatusOK, resp)
}
