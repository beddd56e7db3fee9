package api

import (
	"net/http"

	"github.com/nearhome/streamd/internal/playback"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := playback.Filter{
		TenantID: q.Get("tenantId"),
		CameraID: q.Get("cameraId"),
		Status:   playback.Status(q.Get("status")),
		SID:      q.Get("sid"),
	}

	sessions := s.Sessions.List(filter)
	dtos := make([]sessionDTO, 0, len(sessions))
	for _, sess := range sessions {
		dtos = append(dtos, toSessionDTO(sess))
	}
	writeList(w, http.StatusOK, dtos, len(dtos))
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	result := s.Sessions.Sweep()
	if s.Metrics != nil {
		s.Metrics.IncSweep()
	}
	writeData(w, http.StatusOK, map[string]int{"expired": result.Expired, "ended": result.Ended})
}
