package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/wrkportal/sheetengine/internal/core"
)

// APIKeyAuth returns middleware that validates the X-API-Key header against
// keys, a key -> editor map. A valid key attaches its editor to the request
// context, which is stamped on saved settings. Without require, requests
// with no key pass through anonymously, but a wrong key is still rejected.
func APIKeyAuth(require bool, keys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				if !require {
					next.ServeHTTP(w, r)
					return
				}
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusUnauthorized, "missing API key", "AUTH001")
				return
			}

			editor, ok := lookupKey(apiKey, keys)
			if !ok {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusForbidden, "invalid API key", "AUTH002")
				return
			}

			next.ServeHTTP(w, r.WithContext(core.ContextWithEditor(r.Context(), editor)))
		})
	}
}

// lookupKey finds the editor for key. Every configured key is compared in
// constant time so the timing does not reveal which key, if any, matched.
func lookupKey(key string, keys map[string]string) (string, bool) {
	var editor string
	found := 0
	for candidate, name := range keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(candidate)) == 1 {
			editor = name
			found = 1
		}
	}
	return editor, found == 1
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `","code":"` + code + `"}`))
}
