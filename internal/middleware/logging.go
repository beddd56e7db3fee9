package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs trace info keyed by chimiddleware.RequestID (mounted
// ahead of this middleware), plus the tenant/camera the route targets when
// the path carries them.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := chimiddleware.GetReqID(r.Context())
		start := time.Now()

		log.Printf("[REQ:%s] %s %s from %s", reqID, r.Method, r.URL.Path, r.RemoteAddr)

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		// chi fills in route params only while routing, which happens inside
		// next, so they are read after the handler has run.
		tenantID := chi.URLParam(r, "tenantId")
		cameraID := chi.URLParam(r, "cameraId")

		duration := time.Since(start)
		log.Printf("[REQ:%s] completed %d in %v tenant=%s camera=%s", reqID, rw.status, duration, tenantID, cameraID)
	})
}
