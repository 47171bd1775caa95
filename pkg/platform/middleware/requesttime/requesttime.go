// Package requesttime pins one "now" per HTTP request so createdAt, updatedAt
// and audit timestamps written while serving it agree.
package requesttime

import (
	"net/http"
	"time"

	"patientregistry/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
