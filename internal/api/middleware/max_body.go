package middleware

import (
	"fmt"
	"net/http"

	"github.com/cognidex/cognidex/internal/api"
)

// MaxBodyBytes caps request bodies at limit bytes. Requests declaring an
// oversized Content-Length are rejected up front with 413; bodies without
// a declared length are cut off by http.MaxBytesReader once they cross
// the limit mid-read. A limit of zero or less disables the cap.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		tooLarge := fmt.Sprintf("request body exceeds the %d byte limit", limit)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, tooLarge)
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
