package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. The status code is derived from the error type
//  4. Error is mapped via core.MapError to get user-friendly message
//  5. Technical error + context is logged with request ID for correlation
//  6. User message is rendered as JSON for /api and as an HTML alert otherwise

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wrkportal/sheetengine/internal/core"
	"github.com/wrkportal/sheetengine/internal/formula"
	"github.com/wrkportal/sheetengine/internal/logging"
	"github.com/wrkportal/sheetengine/internal/web/templates"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errBadBody     = core.ErrValidation("invalid request body")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		notFound   *core.NotFoundError
		validation *core.ValidationError
		conflict   *core.ConflictError
		cycle      *core.CycleError
		syntax     *formula.SyntaxError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &cycle), errors.As(err, &conflict), errors.Is(err, core.ErrColumnExists):
		return http.StatusConflict
	case errors.As(err, &validation), errors.As(err, &syntax),
		errors.Is(err, core.ErrNotCalculated),
		errors.Is(err, formula.ErrUnresolvedColumn),
		errors.Is(err, formula.ErrUnknownFunction),
		errors.Is(err, formula.ErrArity):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyCascades):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// userMessage maps err to its support message. Client errors without a
// specific pattern keep their own text, which is already user-facing.
func userMessage(err error, status int) core.UserMessage {
	msg := core.MapError(err)
	if !core.IsUserFacing(err) && status < http.StatusInternalServerError {
		msg.Message = err.Error()
	}
	return msg
}

// respondError logs the technical error server-side and returns a
// user-friendly response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := userMessage(err, status)

	logger := logging.FromContext(r.Context()).With(
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)
	if status >= http.StatusInternalServerError {
		logger.Error("request error")
	} else {
		logger.Warn("request rejected")
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	if wantsJSON(r) {
		detail := ""
		if status < http.StatusInternalServerError {
			detail = err.Error()
		}
		respondErrorJSON(w, msg, status, detail)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = templates.Page("Error", templates.ErrorAlert(msg.Message, msg.Action, msg.Code)).Render(r.Context(), w)
}

// respondErrorJSON writes a JSON error response. Error carries detail when
// given and the user message otherwise.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int, detail string) {
	if detail == "" {
		detail = msg.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   detail,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
