package auth

import "net/http"

// WithAuthHeaders is HTTP middleware that copies request headers into the
// context so tool handlers downstream of a protocol layer can still read the
// bearer token.
//
//	mux.Handle("/mcp", auth.WithAuthHeaders(mcpHandler))
func WithAuthHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithHeaders(r.Context(), r.Header.Clone())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
