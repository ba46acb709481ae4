package middleware

import (
	"net/http"

	"github.com/cloo-solutions/ragsync/internal/api"
)

// MaxBodyBytes rejects declared oversize bodies with 413 and caps the rest,
// so search and ingest handlers see a decode error past the limit.
// A non-positive limit disables the check.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Body == nil || r.Body == http.NoBody:
			case r.ContentLength > limit:
				api.Error(w, http.StatusRequestEntityTooLarge, "request body exceeds limit")
				return
			default:
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
