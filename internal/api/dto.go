package api

import (
	"time"

	"github.com/nearhome/streamd/internal/playback"
	"github.com/nearhome/streamd/internal/stream"
)

// healthDTO is the wire shape for stream.Health.
type healthDTO struct {
	Connectivity  string    `json:"connectivity"`
	LatencyMs     *float64  `json:"latencyMs"`
	PacketLossPct *float64  `json:"packetLossPct"`
	JitterMs      *float64  `json:"jitterMs"`
	Error         string    `json:"error,omitempty"`
	CheckedAt     time.Time `json:"checkedAt"`
}

// entryDTO is the wire shape for stream.Entry.
type entryDTO struct {
	TenantID       string    `json:"tenantId"`
	CameraID       string    `json:"cameraId"`
	RTSPURL        string    `json:"rtspUrl"`
	Transport      string    `json:"transport"`
	CodecHint      string    `json:"codecHint"`
	TargetProfiles []string  `json:"targetProfiles"`
	Version        int       `json:"version"`
	Status         string    `json:"status"`
	Health         healthDTO `json:"health"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func toEntryDTO(e stream.Entry) entryDTO {
	return entryDTO{
		TenantID:       e.Key.TenantID,
		CameraID:       e.Key.CameraID,
		RTSPURL:        e.RTSPURL,
		Transport:      string(e.Source.Transport),
		CodecHint:      string(e.Source.CodecHint),
		TargetProfiles: e.Source.TargetProfiles,
		Version:        e.Version,
		Status:         string(e.Status),
		Health: healthDTO{
			Connectivity:  string(e.Health.Connectivity),
			LatencyMs:     e.Health.LatencyMs,
			PacketLossPct: e.Health.PacketLossPct,
			JitterMs:      e.Health.JitterMs,
			Error:         e.Health.Error,
			CheckedAt:     e.Health.CheckedAt,
		},
		UpdatedAt: e.UpdatedAt,
	}
}

func playbackPath(tenantID, cameraID string) string {
	return "/playback/" + tenantID + "/" + cameraID + "/index.m3u8"
}

// sessionDTO is the wire shape for playback.Session.
type sessionDTO struct {
	TenantID    string     `json:"tenantId"`
	CameraID    string     `json:"cameraId"`
	SID         string     `json:"sid"`
	Sub         string     `json:"sub"`
	Status      string     `json:"status"`
	IssuedAt    time.Time  `json:"issuedAt"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	LastSeenAt  time.Time  `json:"lastSeenAt"`
	EndReason   string     `json:"endReason,omitempty"`
}

func toSessionDTO(s playback.Session) sessionDTO {
	dto := sessionDTO{
		TenantID:   s.Key.TenantID,
		CameraID:   s.Key.CameraID,
		SID:        s.Key.SID,
		Sub:        s.Sub,
		Status:     string(s.Status),
		IssuedAt:   s.IssuedAt,
		ExpiresAt:  s.ExpiresAt,
		LastSeenAt: s.LastSeenAt,
		EndReason:  s.EndReason,
	}
	if !s.ActivatedAt.IsZero() {
		dto.ActivatedAt = &s.ActivatedAt
	}
	if !s.EndedAt.IsZero() {
		dto.EndedAt = &s.EndedAt
	}
	return dto
}
