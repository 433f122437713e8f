package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/scholarfin/be-fund-requests/internal/service"
)

// Authenticate extracts the caller's identity. With a JWT secret configured
// it reads the subject claim of the gateway-issued bearer token; in
// development it falls back to the X-User-ID header. Authentication itself
// (issuing and verifying sessions) belongs to the gateway, not this service.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := ""

			if secret != "" {
				raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
				if raw == "" {
					http.Error(w, "missing bearer token", http.StatusUnauthorized)
					return
				}
				token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
					if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, jwt.ErrSignatureInvalid
					}
					return []byte(secret), nil
				})
				if err != nil || !token.Valid {
					http.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
				userID, _ = token.Claims.GetSubject()
			} else {
				userID = r.Header.Get("X-User-ID")
			}

			if userID == "" {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), ctxKeyUserID, userID)))
		})
	}
}

// userID returns the authenticated caller from the request context.
func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyUserID).(string)
	return id
}

// resolveActor builds the Actor with the roles the directory reports right
// now. Roles are fetched fresh on every action; nothing is cached.
func resolveActor(r *http.Request, directory service.RoleDirectory) (service.Actor, error) {
	id := userID(r)
	roles, err := directory.GetRoles(r.Context(), id)
	if err != nil {
		return service.Actor{}, err
	}
	return service.Actor{ID: id, Roles: roles}, nil
}
