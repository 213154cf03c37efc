package web

import (
	"net/http"

	"github.com/wrkportal/sheetengine/internal/core"
	"github.com/wrkportal/sheetengine/internal/formula"
)

// Stateless engine endpoints. Nothing here touches the store.

type evaluateRequest struct {
	Formula string   `json:"formula"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type evaluateResponse struct {
	Normalized string   `json:"normalized"`
	References []string `json:"references"`
	Unresolved []string `json:"unresolved,omitempty"`
	Values     []any    `json:"values"`
}

// handleEvaluate runs a formula against the given rows. Unresolved
// columns are reported and their rows evaluate to ERROR.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	prog, err := formula.Compile(req.Formula)
	if err != nil {
		respondError(w, r, err)
		return
	}

	bound := prog.Bind(req.Columns)
	resp := evaluateResponse{
		Normalized: prog.String(),
		References: prog.References(),
		Unresolved: prog.Unresolved(req.Columns),
		Values:     make([]any, len(req.Rows)),
	}
	for i, row := range req.Rows {
		resp.Values[i] = bound.Value(row)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleInfer infers the type of every column.
func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Columns    []string `json:"columns"`
		Rows       [][]any  `json:"rows"`
		SampleSize int      `json:"sampleSize"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	src := core.TableSource{Columns: req.Columns, Rows: req.Rows}
	if err := src.Validate(); err != nil {
		respondError(w, r, err)
		return
	}
	n := req.SampleSize
	if n <= 0 {
		n = s.cfg.Engine.SampleSize
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"columns": core.InferColumns(src, n)})
}

// handleFormat formats one value for display.
func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value    any    `json:"value"`
		DataType string `json:"dataType"`
		Format   string `json:"format"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	dt, ok := core.ParseDataType(req.DataType)
	if !ok {
		respondError(w, r, core.ErrValidation("unknown data type %q", req.DataType))
		return
	}
	if !core.ValidFormat(dt, req.Format) {
		respondError(w, r, core.ErrValidation("unknown format %q for %s columns", req.Format, dt))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"formatted": core.FormatValue(req.Value, dt, req.Format)})
}
