package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// HeaderRequestID is the header a request id is both read from (if the
// caller already has one, e.g. from an upstream gateway) and echoed
// back on, so a single id can be traced through a whole call chain.
const HeaderRequestID = "X-Request-Id"

// NewRequestIDMiddleware assigns each request a unique id, reusing one
// already present on the incoming request rather than minting a new
// one, and both stores it on the request's context and echoes it back
// on the response.
func NewRequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)
			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext retrieves the id NewRequestIDMiddleware attached
// to ctx, or "" if none is present (e.g. outside a request scope).
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
