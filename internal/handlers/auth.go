package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/teddyfriends/loyalty/internal/services"
)

const (
	staffKeyHeader = "X-Staff-Key"
	staffIDHeader  = "X-Staff-ID"
)

// RequireStaff guards the staff API with a shared key. An empty key disables
// the check.
func RequireStaff(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" {
				got := r.Header.Get(staffKeyHeader)
				if got == "" {
					if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
						got = strings.TrimPrefix(h, "Bearer ")
					}
				}
				if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
					writeJSON(w, http.StatusUnauthorized, errorBody{Error: services.KindInvalidSignature, Message: "staff key required"})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// staffID prefers the body value, then the X-Staff-ID header.
func staffID(r *http.Request, fromBody string) string {
	if s := strings.TrimSpace(fromBody); s != "" {
		return s
	}
	return strings.TrimSpace(r.Header.Get(staffIDHeader))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
