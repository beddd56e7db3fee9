package middleware

import (
	"net/http"
)

// CORS allows the operator dashboard (provisioning UI, live event viewer)
// to call the data plane from a different origin than it's served from.
// Playback tokens travel as a query parameter rather than a header, so
// nothing here needs to allow-list an auth header.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
