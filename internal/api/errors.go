package api

import (
	"net/http"

	"github.com/nearhome/streamd/internal/token"
)

// apiError is a typed playback failure: an HTTP status plus the machine
// code recorded in both the response body and the playback_errors metric.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

const (
	codeScopeMismatch   = "PLAYBACK_TOKEN_SCOPE_MISMATCH"
	codeSessionClosed   = "PLAYBACK_SESSION_CLOSED"
	codeStreamNotFound  = "PLAYBACK_STREAM_NOT_FOUND"
	codeStreamNotReady  = "PLAYBACK_STREAM_NOT_READY"
	codeStreamStopped   = "PLAYBACK_STREAM_STOPPED"
	codeManifestMissing = "PLAYBACK_MANIFEST_NOT_FOUND"
	codeSegmentMissing  = "PLAYBACK_SEGMENT_NOT_FOUND"
	codeRateLimited     = "RATE_LIMITED"
)

// tokenErr maps a token.Code to its HTTP disposition. All five token
// verification failures are 401; only the scope mismatch computed by the
// caller is 403.
func tokenErr(code token.Code) *apiError {
	return &apiError{Status: http.StatusUnauthorized, Code: string(code), Message: "token verification failed"}
}

func errScopeMismatch() *apiError {
	return &apiError{Status: http.StatusForbidden, Code: codeScopeMismatch, Message: "token scope does not match requested stream"}
}

func errSessionClosed() *apiError {
	return &apiError{Status: http.StatusUnauthorized, Code: codeSessionClosed, Message: "session is closed"}
}

func errStreamNotFound() *apiError {
	return &apiError{Status: http.StatusNotFound, Code: codeStreamNotFound, Message: "stream is not provisioned"}
}

func errStreamNotReady() *apiError {
	return &apiError{Status: http.StatusConflict, Code: codeStreamNotReady, Message: "stream is provisioning"}
}

func errStreamStopped() *apiError {
	return &apiError{Status: http.StatusGone, Code: codeStreamStopped, Message: "stream has been deprovisioned"}
}

func errAssetMissing(asset string) *apiError {
	if asset == "segment" {
		return &apiError{Status: http.StatusNotFound, Code: codeSegmentMissing, Message: "segment not found"}
	}
	return &apiError{Status: http.StatusNotFound, Code: codeManifestMissing, Message: "manifest not found"}
}

func errRateLimited() *apiError {
	return &apiError{Status: http.StatusTooManyRequests, Code: codeRateLimited, Message: "too many requests"}
}
