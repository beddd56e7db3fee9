package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nearhome/streamd/internal/asset"
	"github.com/nearhome/streamd/internal/playback"
	"github.com/nearhome/streamd/internal/stream"
	"github.com/nearhome/streamd/internal/token"
)

// rateLimitMiddleware guards /playback/* ahead of everything else, including
// token verification, per the fixed request-ordering contract.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		tenantID := chi.URLParam(r, "tenantId")
		cameraID := chi.URLParam(r, "cameraId")
		decision := s.Limiter.Allow(r.Context(), tenantID+":"+cameraID)
		if !decision.Allowed {
			apiErr := errRateLimited()
			writeError(w, apiErr.Status, apiErr.Code, apiErr.Message, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePlaybackManifest(w http.ResponseWriter, r *http.Request) {
	s.servePlayback(w, r, "manifest")
}

func (s *Server) handlePlaybackSegment(w http.ResponseWriter, r *http.Request) {
	s.servePlayback(w, r, "segment")
}

// servePlayback implements the fixed 5-step ordering: token verification,
// scope check, stream presence/status, session observation, asset read.
// Metrics are recorded in a finally-style deferred block so result=ok|error
// is always emitted regardless of where the handler exits.
func (s *Server) servePlayback(w http.ResponseWriter, r *http.Request, assetName string) {
	tenantID := chi.URLParam(r, "tenantId")
	cameraID := chi.URLParam(r, "cameraId")
	rawToken := r.URL.Query().Get("token")

	result := "ok"
	code := ""
	defer func() {
		if s.Metrics != nil {
			s.Metrics.ObservePlayback(tenantID, cameraID, assetName, result, code)
		}
	}()

	fail := func(apiErr *apiError) {
		result = "error"
		code = apiErr.Code
		writeError(w, apiErr.Status, apiErr.Code, apiErr.Message, nil)
	}

	// 1. Token verification.
	payload, err := s.Verifier.Verify(rawToken)
	if err != nil {
		tc, _ := token.CodeOf(err)
		fail(tokenErr(tc))
		return
	}

	// 2. Scope check.
	if payload.TID != tenantID || payload.CID != cameraID {
		fail(errScopeMismatch())
		return
	}

	// 3. Stream presence and status.
	entry, ok := s.Registry.Get(tenantID, cameraID)
	if !ok {
		fail(errStreamNotFound())
		return
	}
	switch entry.Status {
	case stream.StatusProvisioning:
		fail(errStreamNotReady())
		return
	case stream.StatusStopped:
		fail(errStreamStopped())
		return
	}

	// 4. Session observation.
	if _, err := s.Sessions.Observe(tenantID, cameraID, payload.SID, payload.Sub, payload.Iat, payload.Exp); err != nil {
		if errors.Is(err, playback.ErrSessionClosed) {
			fail(errSessionClosed())
			return
		}
		fail(&apiError{Status: http.StatusInternalServerError, Code: "INTERNAL_SERVER_ERROR", Message: err.Error()})
		return
	}

	// 5. Asset read with retry.
	var (
		body        []byte
		contentType string
		readErr     error
	)
	if assetName == "segment" {
		contentType = "video/MP2T"
		body, readErr = s.Assets.ReadSegment(tenantID, cameraID)
	} else {
		contentType = "application/vnd.apple.mpegurl"
		body, readErr = s.Assets.ReadManifest(tenantID, cameraID, rawToken)
	}

	if s.Metrics != nil {
		s.recordRetryDelta(tenantID, cameraID, assetName)
	}

	if readErr != nil {
		if errors.Is(readErr, asset.ErrNotFound) {
			fail(errAssetMissing(assetName))
			return
		}
		fail(&apiError{Status: http.StatusInternalServerError, Code: "INTERNAL_SERVER_ERROR", Message: readErr.Error()})
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
