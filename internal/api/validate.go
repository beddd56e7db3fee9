package api

import (
	"github.com/nearhome/streamd/internal/stream"
)

// fieldError is one entry in a VALIDATION_ERROR's details array.
type fieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type provisionRequest struct {
	TenantID       string   `json:"tenantId"`
	CameraID       string   `json:"cameraId"`
	RTSPURL        string   `json:"rtspUrl"`
	Transport      string   `json:"transport"`
	CodecHint      string   `json:"codecHint"`
	TargetProfiles []string `json:"targetProfiles"`
}

var validTransports = map[string]stream.Transport{
	"":     stream.TransportAuto,
	"auto": stream.TransportAuto,
	"tcp":  stream.TransportTCP,
	"udp":  stream.TransportUDP,
}

var validCodecHints = map[string]stream.CodecHint{
	"":        stream.CodecUnknown,
	"h264":    stream.CodecH264,
	"h265":    stream.CodecH265,
	"mpeg4":   stream.CodecMPEG4,
	"unknown": stream.CodecUnknown,
}

// validate returns field errors for an invalid request, or (source, nil)
// for a valid one with defaults applied.
func (req provisionRequest) validate() (stream.Source, []fieldError) {
	var errs []fieldError

	if req.TenantID == "" {
		errs = append(errs, fieldError{Field: "tenantId", Reason: "required"})
	}
	if req.CameraID == "" {
		errs = append(errs, fieldError{Field: "cameraId", Reason: "required"})
	}
	if len(req.RTSPURL) < 4 {
		errs = append(errs, fieldError{Field: "rtspUrl", Reason: "must be at least 4 characters"})
	}

	transport, ok := validTransports[req.Transport]
	if !ok {
		errs = append(errs, fieldError{Field: "transport", Reason: "must be one of auto, tcp, udp"})
	}
	codec, ok := validCodecHints[req.CodecHint]
	if !ok {
		errs = append(errs, fieldError{Field: "codecHint", Reason: "must be one of h264, h265, mpeg4, unknown"})
	}

	if len(errs) > 0 {
		return stream.Source{}, errs
	}
	return stream.Source{Transport: transport, CodecHint: codec, TargetProfiles: req.TargetProfiles}, nil
}

type deprovisionRequest struct {
	TenantID string `json:"tenantId"`
	CameraID string `json:"cameraId"`
}

func (req deprovisionRequest) validate() []fieldError {
	var errs []fieldError
	if req.TenantID == "" {
		errs = append(errs, fieldError{Field: "tenantId", Reason: "required"})
	}
	if req.CameraID == "" {
		errs = append(errs, fieldError{Field: "cameraId", Reason: "required"})
	}
	return errs
}
