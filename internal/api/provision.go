package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nearhome/streamd/internal/playback"
)

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed",
			[]fieldError{{Field: "body", Reason: "malformed JSON"}})
		return
	}

	source, errs := req.validate()
	if len(errs) > 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", errs)
		return
	}

	result, err := s.Registry.Upsert(req.TenantID, req.CameraID, req.RTSPURL, source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", err.Error(), nil)
		return
	}

	if invalidator, ok := s.Assets.(AssetInvalidator); ok {
		invalidator.Invalidate(req.TenantID, req.CameraID)
	}

	eventType := "stream.provisioned"
	if result.Reprovisioned && result.Entry.Version > 1 {
		eventType = "stream.reprovisioned"
	}
	s.emitStream(eventType, toEntryDTO(result.Entry))

	resp := struct {
		entryDTO
		PlaybackPath  string `json:"playbackPath"`
		Reprovisioned bool   `json:"reprovisioned"`
	}{
		entryDTO:      toEntryDTO(result.Entry),
		PlaybackPath:  playbackPath(req.TenantID, req.CameraID),
		Reprovisioned: result.Reprovisioned,
	}
	writeData(w, http.StatusOK, resp)
}

func (s *Server) handleDeprovision(w http.ResponseWriter, r *http.Request) {
	var req deprovisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed",
			[]fieldError{{Field: "body", Reason: "malformed JSON"}})
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", errs)
		return
	}

	removed := s.Registry.MarkStopped(req.TenantID, req.CameraID)
	if removed {
		s.Sessions.CloseForStream(req.TenantID, req.CameraID, "deprovisioned")
		if invalidator, ok := s.Assets.(AssetInvalidator); ok {
			invalidator.Invalidate(req.TenantID, req.CameraID)
		}
		s.emitStream("stream.deprovisioned", map[string]string{
			"tenantId": req.TenantID,
			"cameraId": req.CameraID,
		})
	}

	writeData(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         true,
		"streams":    len(s.Registry.Iterate()),
		"sessions":   len(s.Sessions.List(playback.Filter{})),
		"storageDir": s.StorageDir,
	})
}

func (s *Server) handleHealthOne(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	cameraID := chi.URLParam(r, "cameraId")

	entry, ok := s.Registry.Get(tenantID, cameraID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"ok": false, "reason": "not_provisioned"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "data": toEntryDTO(entry)})
}
