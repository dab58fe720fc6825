package auth

import "net/http"

// RequireAdmin rejects callers that are not admins of their tenant. It must
// run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		switch {
		case id == nil:
			respondErr(w, http.StatusForbidden, "forbidden", "authentication required")
		case !id.IsAdmin():
			respondErr(w, http.StatusForbidden, "forbidden", "admin role required")
		default:
			next.ServeHTTP(w, r)
		}
	})
}
