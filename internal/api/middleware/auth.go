package middleware

import (
	"net/http"
	"strings"

	"github.com/forensiq/forensiq/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

// Auth validates the shared function key presented as a Bearer token against
// a bcrypt hash from configuration. Workers and the external scheduler all
// share the one key. An empty hash disables authentication entirely, which is
// the local-development mode.
type Auth struct {
	keyHash string
}

func NewAuth(keyHash string) *Auth {
	return &Auth{keyHash: keyHash}
}

func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.keyHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := extractBearerToken(r)
		if key == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(a.keyHash), []byte(key)) != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid function key", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
