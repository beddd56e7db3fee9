package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearhome/streamd/internal/api"
	"github.com/nearhome/streamd/internal/asset"
	"github.com/nearhome/streamd/internal/metrics"
	"github.com/nearhome/streamd/internal/playback"
	"github.com/nearhome/streamd/internal/stream"
	"github.com/nearhome/streamd/internal/token"
)

const testSecret = "test-secret"

type testServer struct {
	srv      *api.Server
	handler  http.Handler
	registry *stream.Registry
	sessions *playback.Manager
	reader   *asset.Reader
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()
	producer := asset.NewProducer(root)
	registry := stream.NewRegistry(producer)
	reader := asset.NewReader(root, asset.RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	reader.SetSleeper(func(time.Duration) {})
	sessions := playback.NewManager(60*time.Second, nil)
	verifier := token.NewVerifier([]byte(testSecret))
	collector := metrics.NewCollector()

	srv := &api.Server{
		Registry:   registry,
		Sessions:   sessions,
		Assets:     reader,
		Verifier:   verifier,
		Metrics:    collector,
		StorageDir: root,
	}

	return &testServer{srv: srv, handler: srv.Router(), registry: registry, sessions: sessions, reader: reader}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func signToken(t *testing.T, tid, cid, sid, sub string, iat, exp int64) string {
	t.Helper()
	tok, err := token.Encode([]byte(testSecret), token.Payload{
		Sub: sub, TID: tid, CID: cid, SID: sid, Exp: exp, Iat: iat, V: 1,
	})
	require.NoError(t, err)
	return tok
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestProvision_S1HappyPathThenPlayback(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/provision", map[string]interface{}{
		"tenantId": "tenant-a", "cameraId": "camera-a", "rtspUrl": "rtsp://demo/camera-a",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["version"])
	assert.Equal(t, "ready", data["status"])
	assert.Equal(t, true, data["reprovisioned"])

	now := time.Now().Unix()
	tok := signToken(t, "tenant-a", "camera-a", "sid-1", "user-1", now, now+60)

	rec = ts.do(t, http.MethodGet, "/playback/tenant-a/camera-a/index.m3u8?token="+tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "#EXTM3U")
	assert.Contains(t, rec.Body.String(), "/playback/tenant-a/camera-a/segment0.ts?token=")
	assert.Equal(t, "application/vnd.apple.mpegurl", rec.Header().Get("Content-Type"))
}

func TestPlayback_S2ExpiredToken(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/provision", map[string]interface{}{
		"tenantId": "tenant-b", "cameraId": "camera-b", "rtspUrl": "rtsp://demo/camera-b",
	})

	now := time.Now().Unix()
	tok := signToken(t, "tenant-b", "camera-b", "sid-2", "user-1", now-120, now-60)

	rec := ts.do(t, http.MethodGet, "/playback/tenant-b/camera-b/index.m3u8?token="+tok, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "PLAYBACK_TOKEN_EXPIRED", body["code"])
}

func TestPlayback_S3ScopeMismatch(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/provision", map[string]interface{}{
		"tenantId": "tenant-d", "cameraId": "camera-d", "rtspUrl": "rtsp://demo/camera-d",
	})

	now := time.Now().Unix()
	tok := signToken(t, "tenant-other", "camera-d", "sid-3", "user-1", now, now+60)

	rec := ts.do(t, http.MethodGet, "/playback/tenant-d/camera-d/index.m3u8?token="+tok, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "PLAYBACK_TOKEN_SCOPE_MISMATCH", body["code"])
}

func TestPlayback_S4Deprovision(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/provision", map[string]interface{}{
		"tenantId": "tenant-c", "cameraId": "camera-c", "rtspUrl": "rtsp://demo/camera-c",
	})
	rec := ts.do(t, http.MethodPost, "/deprovision", map[string]interface{}{
		"tenantId": "tenant-c", "cameraId": "camera-c",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["data"].(map[string]interface{})["removed"])

	now := time.Now().Unix()
	tok := signToken(t, "tenant-c", "camera-c", "sid-4", "user-1", now, now+60)
	rec = ts.do(t, http.MethodGet, "/playback/tenant-c/camera-c/index.m3u8?token="+tok, nil)
	require.Equal(t, http.StatusGone, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "PLAYBACK_STREAM_STOPPED", body["code"])
}

func TestPlayback_S5SessionClosedAfterSweep(t *testing.T) {
	root := t.TempDir()
	producer := asset.NewProducer(root)
	registry := stream.NewRegistry(producer)
	reader := asset.NewReader(root, asset.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	sessions := playback.NewManager(1*time.Second, nil)
	verifier := token.NewVerifier([]byte(testSecret))
	collector := metrics.NewCollector()

	srv := &api.Server{Registry: registry, Sessions: sessions, Assets: reader, Verifier: verifier, Metrics: collector, StorageDir: root}
	handler := srv.Router()

	do := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var r *bytes.Reader
		if body != nil {
			data, _ := json.Marshal(body)
			r = bytes.NewReader(data)
		} else {
			r = bytes.NewReader(nil)
		}
		req := httptest.NewRequest(method, path, r)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	do(http.MethodPost, "/provision", map[string]interface{}{
		"tenantId": "tenant-session-ended", "cameraId": "camera-session-ended", "rtspUrl": "rtsp://demo/x",
	})

	now := time.Now().Unix()
	tok, err := token.Encode([]byte(testSecret), token.Payload{
		Sub: "user-1", TID: "tenant-session-ended", CID: "camera-session-ended", SID: "sid-ended-1",
		Exp: now + 60, Iat: now, V: 1,
	})
	require.NoError(t, err)

	rec := do(http.MethodGet, "/playback/tenant-session-ended/camera-session-ended/index.m3u8?token="+tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	time.Sleep(1200 * time.Millisecond)
	rec = do(http.MethodPost, "/sessions/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(http.MethodGet, "/playback/tenant-session-ended/camera-session-ended/index.m3u8?token="+tok, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "PLAYBACK_SESSION_CLOSED", body["code"])
}

func TestProvision_S6ReprovisionVersionBump(t *testing.T) {
	ts := newTestServer(t)
	req := map[string]interface{}{
		"tenantId": "tenant-reprovision", "cameraId": "camera-reprovision",
		"rtspUrl": "rtsp://demo/camera-reprovision", "transport": "tcp", "codecHint": "h264",
		"targetProfiles": []string{"main", "sub"},
	}

	rec := ts.do(t, http.MethodPost, "/provision", req)
	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["version"])
	assert.Equal(t, true, data["reprovisioned"])

	rec = ts.do(t, http.MethodPost, "/provision", req)
	body = decodeBody(t, rec)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["version"])
	assert.Equal(t, false, data["reprovisioned"])

	req["rtspUrl"] = "rtsp://demo/camera-reprovision-changed"
	rec = ts.do(t, http.MethodPost, "/provision", req)
	body = decodeBody(t, rec)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["version"])
	assert.Equal(t, true, data["reprovisioned"])
}

func TestProvision_ValidationError(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/provision", map[string]interface{}{
		"tenantId": "", "cameraId": "camera-a", "rtspUrl": "x",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.NotEmpty(t, body["details"])
}

func TestTenantIsolation_DeprovisionDoesNotAffectOtherTenant(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/provision", map[string]interface{}{
		"tenantId": "tenant-1", "cameraId": "camera-shared", "rtspUrl": "rtsp://demo/shared",
	})
	ts.do(t, http.MethodPost, "/provision", map[string]interface{}{
		"tenantId": "tenant-2", "cameraId": "camera-shared", "rtspUrl": "rtsp://demo/shared",
	})
	ts.do(t, http.MethodPost, "/deprovision", map[string]interface{}{
		"tenantId": "tenant-1", "cameraId": "camera-shared",
	})

	rec := ts.do(t, http.MethodGet, "/health/tenant-2/camera-shared", nil)
	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "ready", data["status"])
}

func TestUnknownRoute_NotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/nonexistent", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestHealthOne_NotProvisioned(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health/tenant-x/camera-x", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "not_provisioned", body["reason"])
}

func TestSessionsList_FilteredByStreamReportsTotal(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/provision", map[string]interface{}{
		"tenantId": "tenant-list", "cameraId": "camera-list", "rtspUrl": "rtsp://demo/list",
	})
	now := time.Now().Unix()
	for _, sid := range []string{"sid-a", "sid-b"} {
		tok := signToken(t, "tenant-list", "camera-list", sid, "user-1", now, now+60)
		ts.do(t, http.MethodGet, "/playback/tenant-list/camera-list/index.m3u8?token="+tok, nil)
	}

	rec := ts.do(t, http.MethodGet, "/sessions?tenantId=tenant-list&cameraId=camera-list", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["total"])
}

func TestPlaybackRetryOnTransientMiss_SucceedsAndIncrementsRetryCounter(t *testing.T) {
	root := t.TempDir()
	producer := asset.NewProducer(root)
	registry := stream.NewRegistry(producer)
	reader := asset.NewReader(root, asset.RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})

	sessions := playback.NewManager(60*time.Second, nil)
	verifier := token.NewVerifier([]byte(testSecret))
	collector := metrics.NewCollector()
	srv := &api.Server{Registry: registry, Sessions: sessions, Assets: reader, Verifier: verifier, Metrics: collector, StorageDir: root}
	handler := srv.Router()

	_, err := registry.Upsert("tenant-retry", "camera-retry", "rtsp://demo/retry", stream.Source{})
	require.NoError(t, err)

	manifestPath := filepath.Join(root, "tenant-retry", "camera-retry", asset.ManifestName)
	require.NoError(t, os.Remove(manifestPath))

	attempts := 0
	reader.SetSleeper(func(time.Duration) {
		attempts++
		if attempts == 2 {
			require.NoError(t, producer.Ensure("tenant-retry", "camera-retry"))
		}
	})

	now := time.Now().Unix()
	tok := signToken(t, "tenant-retry", "camera-retry", "sid-retry", "user-1", now, now+60)
	req := httptest.NewRequest(http.MethodGet, "/playback/tenant-retry/camera-retry/index.m3u8?token="+tok, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), reader.RetryCount("tenant-retry", "camera-retry", "manifest"))
}

func TestDeprovision_InvalidatesCachedManifest(t *testing.T) {
	root := t.TempDir()
	producer := asset.NewProducer(root)
	registry := stream.NewRegistry(producer)
	reader := asset.NewReader(root, asset.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	caching, err := asset.NewCachingReader(reader, 16)
	require.NoError(t, err)

	sessions := playback.NewManager(60*time.Second, nil)
	verifier := token.NewVerifier([]byte(testSecret))
	srv := &api.Server{Registry: registry, Sessions: sessions, Assets: caching, Verifier: verifier, Metrics: metrics.NewCollector(), StorageDir: root}
	handler := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/provision", bytes.NewReader(mustJSON(t, map[string]interface{}{
		"tenantId": "tenant-cache", "cameraId": "camera-cache", "rtspUrl": "rtsp://demo/cache",
	})))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	now := time.Now().Unix()
	tok := signToken(t, "tenant-cache", "camera-cache", "sid-cache", "user-1", now, now+60)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/playback/tenant-cache/camera-cache/index.m3u8?token="+tok, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/deprovision", bytes.NewReader(mustJSON(t, map[string]interface{}{
		"tenantId": "tenant-cache", "cameraId": "camera-cache",
	})))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	manifestPath := filepath.Join(root, "tenant-cache", "camera-cache", asset.ManifestName)
	require.NoError(t, os.Remove(manifestPath))

	_, readErr := caching.ReadManifest("tenant-cache", "camera-cache", tok)
	require.Error(t, readErr, "cached manifest must have been invalidated on deprovision, not served stale")
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
