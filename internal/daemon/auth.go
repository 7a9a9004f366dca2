package daemon

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"retriever/internal/api"
	"retriever/internal/services"
)

// authMiddleware validates bearer tokens. With an empty token every request
// passes through; otherwise requests must carry "Authorization: Bearer <token>".
func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			presented, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(api.ErrorResponse{
					Error:   string(services.KindAuth),
					Message: "unauthorized",
					Hint:    "set api.token or RETRIEVER_API_TOKEN to the daemon's token",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
