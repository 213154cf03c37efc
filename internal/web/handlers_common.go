package web

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wrkportal/sheetengine/internal/core"
)

// decodeJSON reads a size-limited JSON body into v. Unknown fields are
// rejected so typos in a request surface as errors.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.ErrValidation("file too large: limit is %d MB", tooLarge.Limit>>20)
		}
		if errors.Is(err, io.EOF) {
			return errBadBody
		}
		return core.ErrValidation("invalid request body: %v", err)
	}
	return nil
}

// columnIndex parses the {index} URL parameter.
func columnIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.ErrValidation("column index %q is not a number", raw)
	}
	return i, nil
}

// clientIP returns the host part of RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// handleHealth reports liveness and cascade capacity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":   "ok",
		"cascades": s.service.CascadeStatus(),
	})
}
