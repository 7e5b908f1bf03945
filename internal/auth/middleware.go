package auth

import (
	"net/http"
)

// Middleware rejects requests whose bearer token is missing, invalid or
// revoked. Unlike a bare signature check, this consults the revocation
// cache, so a logged-out token is refused even before its natural expiry.
func Middleware(service *Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken, ok := bearerToken(w, r)
		if !ok {
			return
		}

		valid, err := service.ValidateAccessToken(r.Context(), accessToken)
		if err != nil || !valid {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
