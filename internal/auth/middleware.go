package auth

import (
	"net/http"
	"strings"
)

// UnauthorizedFunc writes the rejection response.
type UnauthorizedFunc func(w http.ResponseWriter, r *http.Request, reason string)

// RequireBearer returns middleware that rejects requests whose
// "Authorization: Bearer <token>" header does not satisfy gate. Rejected
// requests never reach next. An open gate passes everything through.
func RequireBearer(gate *TokenGate, reject UnauthorizedFunc) func(http.Handler) http.Handler {
	if reject == nil {
		reject = defaultReject
	}
	return func(next http.Handler) http.Handler {
		if gate.Open() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				reject(w, r, "authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				reject(w, r, "invalid authorization format, expected Bearer <token>")
				return
			}

			if err := gate.Verify(strings.TrimSpace(parts[1])); err != nil {
				reject(w, r, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func defaultReject(w http.ResponseWriter, _ *http.Request, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="mpmail"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + reason + `"}`))
}
