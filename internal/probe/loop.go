// Package probe runs the background health-sampling loop over the Stream
// Registry: advancing provisioning streams to ready, refreshing stopped
// streams as offline, and synthesizing connectivity samples for ready
// streams.
package probe

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nearhome/streamd/internal/stream"
)

const DefaultInterval = 5 * time.Second

// Registry is the subset of *stream.Registry the loop depends on.
type Registry interface {
	Iterate() []stream.Entry
	Get(tenantID, cameraID string) (stream.Entry, bool)
	UpdateProbe(tenantID, cameraID string, mutate stream.ProbeMutator)
}

// OnTick is invoked once per entry per tick, after the probe transform has
// been applied; used to emit lifecycle/metrics side effects without coupling
// this package to events/metrics.
type OnTick func(entry stream.Entry)

// Loop is a single cooperative background task advancing every stream's
// status/health once per interval.
type Loop struct {
	registry Registry
	sampler  Sampler
	interval time.Duration
	onTick   OnTick

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewLoop(registry Registry, sampler Sampler, interval time.Duration, onTick OnTick) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if sampler == nil {
		sampler = NewRandomSampler(nil)
	}
	return &Loop{
		registry: registry,
		sampler:  sampler,
		interval: interval,
		onTick:   onTick,
		quit:     make(chan struct{}),
	}
}

// Start launches the loop's goroutine. Safe to call once.
func (l *Loop) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.run(ctx)
}

// Stop signals the loop to exit and waits for it to do so.
func (l *Loop) Stop() {
	close(l.quit)
	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.quit:
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

// tick applies the probe transform to every entry. An error or panic-worthy
// condition on one entry must never interrupt the global cycle; each entry
// is updated independently under the registry's own locking.
func (l *Loop) tick() {
	for _, entry := range l.registry.Iterate() {
		l.probeOne(entry.Key.TenantID, entry.Key.CameraID, entry.Status)
	}
}

func (l *Loop) probeOne(tenantID, cameraID string, status stream.Status) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("probe: recovered panic probing %s/%s: %v", tenantID, cameraID, r)
		}
	}()

	l.registry.UpdateProbe(tenantID, cameraID, func(e *stream.Entry) {
		now := time.Now()
		switch e.Status {
		case stream.StatusStopped:
			e.Health = stream.Health{Connectivity: stream.ConnectivityOffline, Error: "deprovisioned", CheckedAt: now}
		case stream.StatusProvisioning:
			e.Status = stream.StatusReady
			e.Health = stream.Health{Connectivity: stream.ConnectivityOnline, CheckedAt: now}
		case stream.StatusReady:
			obs := l.sampler.Sample()
			e.Health = stream.Health{
				Connectivity:  stream.Connectivity(obs.Connectivity),
				LatencyMs:     obs.LatencyMs,
				PacketLossPct: obs.PacketLossPct,
				JitterMs:      obs.JitterMs,
				Error:         obs.Error,
				CheckedAt:     now,
			}
		}
		e.UpdatedAt = now
	})

	if l.onTick != nil {
		if updated, ok := l.registry.Get(tenantID, cameraID); ok {
			l.onTick(updated)
		}
	}
}
