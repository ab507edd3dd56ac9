// Package api implements the REST API using chi.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/starford/mimir/internal/auth"
)

type ctxKey int

const userIDKey ctxKey = iota

// AuthMiddleware returns middleware that validates the Bearer token and
// stores the authenticated user id in the request context.
func AuthMiddleware(authSvc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, errorBody("token is missing"))
				return
			}
			userID, err := authSvc.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody("token is invalid"))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}

// requestUserID returns the user id stored by AuthMiddleware.
func requestUserID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}
