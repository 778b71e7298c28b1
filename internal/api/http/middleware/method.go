package middleware

import (
	"net/http"

	"github.com/dtroode/zklogin-recovery/internal/api/http/handler"
)

// Method rejects requests whose method is not method with a JSON 405.
func Method(method string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			handler.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}
