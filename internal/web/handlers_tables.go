package web

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wrkportal/sheetengine/internal/core"
	"github.com/wrkportal/sheetengine/internal/web/templates"
)

// handleIndex renders the list of tables.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	tables, err := s.service.ListSources(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = templates.Page("Tables", templates.TableList(tables)).Render(r.Context(), w)
}

// handleTableView renders one table as a formatted HTML grid.
func (s *Server) handleTableView(w http.ResponseWriter, r *http.Request) {
	rendered, err := s.service.RenderTable(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = templates.Page(rendered.Name, templates.TableGrid(rendered)).Render(r.Context(), w)
}

// handleListTables returns every stored table without rows.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.service.ListSources(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if tables == nil {
		tables = []core.SourceInfo{}
	}
	writeJSON(w, r, http.StatusOK, tables)
}

type tableRequest struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// handleRegisterTable stores a table sent as JSON.
func (s *Server) handleRegisterTable(w http.ResponseWriter, r *http.Request) {
	var req tableRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	info, err := s.service.RegisterSource(r.Context(), core.TableSource{
		ID: req.ID, Name: req.Name, Columns: req.Columns, Rows: req.Rows,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, info)
}

// handleUploadTable stores a table sent as a multipart CSV upload. The
// form may carry id and name; the name defaults to the file name.
func (s *Server) handleUploadTable(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Server.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, r, core.ErrValidation("file too large or invalid form"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, core.ErrValidation("no file provided"))
		return
	}
	defer file.Close()

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	src, err := core.ReadCSVSource(r.FormValue("id"), name, file)
	if err != nil {
		respondError(w, r, err)
		return
	}
	info, err := s.service.RegisterSource(r.Context(), src)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, info)
}

// handleGetTable returns the typed view of a table with its settings.
func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	opened, err := s.service.OpenTable(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, opened)
}

// handleRenderTable returns every cell formatted for display.
func (s *Server) handleRenderTable(w http.ResponseWriter, r *http.Request) {
	rendered, err := s.service.RenderTable(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rendered)
}

// handleDeleteTable removes a table, its settings and its merges.
func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteTable(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReplaceSource replaces the content of a table and reports the
// cascade over its dependents. The body is either JSON
// {"columns": [...], "rows": [[...]]} or a text/csv file.
func (s *Server) handleReplaceSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var columns []string
	var rows [][]any
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
		src, err := core.ReadCSVSource(id, "", r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				err = core.ErrValidation("file too large: limit is %d MB", tooLarge.Limit>>20)
			}
			respondError(w, r, err)
			return
		}
		columns, rows = src.Columns, src.Rows
	} else {
		var req tableRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			respondError(w, r, err)
			return
		}
		columns, rows = req.Columns, req.Rows
	}

	result, err := s.service.UpdateSource(r.Context(), id, columns, rows)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}
