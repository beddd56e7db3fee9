package stream_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearhome/streamd/internal/stream"
)

type fakeAssets struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeAssets) Ensure(tenantID, cameraID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func defaultSource() stream.Source {
	return stream.Source{Transport: stream.TransportTCP, CodecHint: stream.CodecH264, TargetProfiles: []string{"main", "sub"}}
}

func TestUpsert_Idempotent(t *testing.T) {
	assets := &fakeAssets{}
	reg := stream.NewRegistry(assets)

	r1, err := reg.Upsert("tenant-reprovision", "camera-reprovision", "rtsp://demo/a", defaultSource())
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Entry.Version)
	assert.True(t, r1.Reprovisioned)
	assert.Equal(t, stream.StatusReady, r1.Entry.Status)

	r2, err := reg.Upsert("tenant-reprovision", "camera-reprovision", "rtsp://demo/a", defaultSource())
	require.NoError(t, err)
	assert.Equal(t, 1, r2.Entry.Version)
	assert.False(t, r2.Reprovisioned)

	r3, err := reg.Upsert("tenant-reprovision", "camera-reprovision", "rtsp://demo/b", defaultSource())
	require.NoError(t, err)
	assert.Equal(t, 2, r3.Entry.Version)
	assert.True(t, r3.Reprovisioned)

	assert.Equal(t, 2, assets.calls)
}

func TestUpsert_ProfileReorderIsAChange(t *testing.T) {
	reg := stream.NewRegistry(&fakeAssets{})

	src := stream.Source{Transport: stream.TransportAuto, CodecHint: stream.CodecUnknown, TargetProfiles: []string{"main", "sub"}}
	_, err := reg.Upsert("t1", "c1", "rtsp://x", src)
	require.NoError(t, err)

	reordered := stream.Source{Transport: stream.TransportAuto, CodecHint: stream.CodecUnknown, TargetProfiles: []string{"sub", "main"}}
	r2, err := reg.Upsert("t1", "c1", "rtsp://x", reordered)
	require.NoError(t, err)
	assert.True(t, r2.Reprovisioned)
	assert.Equal(t, 2, r2.Entry.Version)
}

func TestTenantIsolation(t *testing.T) {
	reg := stream.NewRegistry(&fakeAssets{})

	_, err := reg.Upsert("tenant-a", "camera-shared", "rtsp://a", defaultSource())
	require.NoError(t, err)
	_, err = reg.Upsert("tenant-b", "camera-shared", "rtsp://b", defaultSource())
	require.NoError(t, err)

	removed := reg.MarkStopped("tenant-a", "camera-shared")
	assert.True(t, removed)

	entryA, _ := reg.Get("tenant-a", "camera-shared")
	entryB, _ := reg.Get("tenant-b", "camera-shared")
	assert.Equal(t, stream.StatusStopped, entryA.Status)
	assert.Equal(t, stream.StatusReady, entryB.Status)
}

func TestUpsert_ReactivatesStoppedStreamEvenWithUnchangedConfig(t *testing.T) {
	assets := &fakeAssets{}
	reg := stream.NewRegistry(assets)

	r1, err := reg.Upsert("t1", "c1", "rtsp://x", defaultSource())
	require.NoError(t, err)
	require.True(t, reg.MarkStopped("t1", "c1"))

	r2, err := reg.Upsert("t1", "c1", "rtsp://x", defaultSource())
	require.NoError(t, err)
	assert.True(t, r2.Reprovisioned)
	assert.Equal(t, r1.Entry.Version+1, r2.Entry.Version)
	assert.Equal(t, stream.StatusReady, r2.Entry.Status)
	assert.Equal(t, 2, assets.calls)
}

func TestMarkStopped_UnknownReturnsFalse(t *testing.T) {
	reg := stream.NewRegistry(&fakeAssets{})
	assert.False(t, reg.MarkStopped("nope", "nope"))
}

func TestMarkStopped_SetsOfflineAndError(t *testing.T) {
	reg := stream.NewRegistry(&fakeAssets{})
	_, err := reg.Upsert("t1", "c1", "rtsp://x", defaultSource())
	require.NoError(t, err)

	require.True(t, reg.MarkStopped("t1", "c1"))
	entry, ok := reg.Get("t1", "c1")
	require.True(t, ok)
	assert.Equal(t, stream.StatusStopped, entry.Status)
	assert.Equal(t, stream.ConnectivityOffline, entry.Health.Connectivity)
	assert.Equal(t, "deprovisioned", entry.Health.Error)
}

func TestUpdateProbe_NoopOnMissingEntry(t *testing.T) {
	reg := stream.NewRegistry(&fakeAssets{})
	called := false
	reg.UpdateProbe("t1", "c1", func(e *stream.Entry) { called = true })
	assert.False(t, called)
}

func TestIterate_ReturnsSnapshot(t *testing.T) {
	reg := stream.NewRegistry(&fakeAssets{})
	_, err := reg.Upsert("t1", "c1", "rtsp://x", defaultSource())
	require.NoError(t, err)
	_, err = reg.Upsert("t2", "c1", "rtsp://y", defaultSource())
	require.NoError(t, err)

	entries := reg.Iterate()
	assert.Len(t, entries, 2)
}

func TestUpsert_ConcurrentSameKeyStaysMonotonic(t *testing.T) {
	reg := stream.NewRegistry(&fakeAssets{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			src := defaultSource()
			src.TargetProfiles = []string{"main"}
			_, _ = reg.Upsert("t1", "c1", "rtsp://x", src)
		}(i)
	}
	wg.Wait()

	entry, ok := reg.Get("t1", "c1")
	require.True(t, ok)
	assert.GreaterOrEqual(t, entry.Version, 1)
}
