package stream

import (
	"fmt"
	"sync"
	"time"
)

// AssetProducer provisions the on-disk (manifest, segment) pair for a
// stream. Implemented by internal/asset; declared here, consumer-side, so
// this package never imports asset.
type AssetProducer interface {
	Ensure(tenantID, cameraID string) error
}

// ProbeMutator mutates an entry's status/health in place under the
// registry's lock. Used by the Probe Loop via UpdateProbe.
type ProbeMutator func(e *Entry)

// Registry is the authoritative, in-memory map of provisioned streams.
type Registry struct {
	assets AssetProducer

	mu      sync.RWMutex
	entries map[Key]*Entry

	// keyLocks strips provisioning so two upserts on distinct keys never
	// block each other, while upserts on the same key still serialize and
	// see a consistent snapshot (per-key critical section).
	keyLocksMu sync.Mutex
	keyLocks   map[Key]*sync.Mutex
}

// NewRegistry constructs an empty registry backed by the given asset
// producer.
func NewRegistry(assets AssetProducer) *Registry {
	return &Registry{
		assets:   assets,
		entries:  make(map[Key]*Entry),
		keyLocks: make(map[Key]*sync.Mutex),
	}
}

func (r *Registry) lockFor(k Key) *sync.Mutex {
	r.keyLocksMu.Lock()
	defer r.keyLocksMu.Unlock()
	l, ok := r.keyLocks[k]
	if !ok {
		l = &sync.Mutex{}
		r.keyLocks[k] = l
	}
	return l
}

// UpsertResult is the outcome of a provision request.
type UpsertResult struct {
	Entry         Entry
	Reprovisioned bool
}

// Upsert provisions or reprovisions a stream at (tenantID, cameraID).
//
// Concurrent upserts on the same key serialize via a per-key lock so that
// version is always strictly monotonic and the idempotency comparison sees
// a consistent snapshot; upserts on distinct keys never block each other.
func (r *Registry) Upsert(tenantID, cameraID, rtspURL string, source Source) (UpsertResult, error) {
	if len(source.TargetProfiles) == 0 {
		source.TargetProfiles = append([]string(nil), DefaultTargetProfiles...)
	}
	key := Key{TenantID: tenantID, CameraID: cameraID}
	keyLock := r.lockFor(key)
	keyLock.Lock()
	defer keyLock.Unlock()

	r.mu.RLock()
	existing, found := r.entries[key]
	r.mu.RUnlock()

	if found && existing.Status != StatusStopped && existing.RTSPURL == rtspURL && existing.Source.Equal(source) {
		return UpsertResult{Entry: existing.Clone(), Reprovisioned: false}, nil
	}

	version := 1
	if found {
		version = existing.Version + 1
	}

	now := time.Now()
	entry := &Entry{
		Key:     key,
		RTSPURL: rtspURL,
		Source:  source,
		Version: version,
		Status:  StatusProvisioning,
		Health: Health{
			Connectivity: ConnectivityDegraded,
			Error:        "provisioning",
			CheckedAt:    now,
		},
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.entries[key] = entry
	r.mu.Unlock()

	if err := r.assets.Ensure(tenantID, cameraID); err != nil {
		return UpsertResult{}, fmt.Errorf("stream: ensure assets for %s/%s: %w", tenantID, cameraID, err)
	}

	r.mu.Lock()
	entry.Status = StatusReady
	entry.Health = Health{Connectivity: ConnectivityOnline, CheckedAt: time.Now()}
	entry.UpdatedAt = time.Now()
	out := entry.Clone()
	r.mu.Unlock()

	return UpsertResult{Entry: out, Reprovisioned: true}, nil
}

// MarkStopped deprovisions a stream, retaining its entry so post-deprovision
// playback can answer STREAM_STOPPED. Returns whether an entry existed.
func (r *Registry) MarkStopped(tenantID, cameraID string) bool {
	key := Key{TenantID: tenantID, CameraID: cameraID}
	keyLock := r.lockFor(key)
	keyLock.Lock()
	defer keyLock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		return false
	}
	entry.Status = StatusStopped
	entry.Health = Health{Connectivity: ConnectivityOffline, Error: "deprovisioned", CheckedAt: time.Now()}
	entry.UpdatedAt = time.Now()
	return true
}

// Get returns a snapshot of the entry at (tenantID, cameraID), if known.
func (r *Registry) Get(tenantID, cameraID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[Key{TenantID: tenantID, CameraID: cameraID}]
	if !ok {
		return Entry{}, false
	}
	return entry.Clone(), true
}

// Iterate returns a snapshot of every entry in the registry.
func (r *Registry) Iterate() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Clone())
	}
	return out
}

// UpdateProbe applies mutate to the entry at (tenantID, cameraID) under the
// registry's lock, used by the Probe Loop to update status/health in place.
// It is a no-op if the entry no longer exists.
func (r *Registry) UpdateProbe(tenantID, cameraID string, mutate ProbeMutator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[Key{TenantID: tenantID, CameraID: cameraID}]
	if !ok {
		return
	}
	mutate(entry)
}
