package middleware

import (
	"net/http"

	"github.com/rpattn/logbook/internal/auth"
)

// OwnerMiddleware records the requesting client as the lock owner.
func OwnerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.ContextWithOwner(r.Context(), auth.OwnerFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
