package probe

import "math/rand"

// Sampler synthesizes a health observation for a "ready" stream. Pluggable
// so a real prober can replace the placeholder distribution without
// touching the loop.
type Sampler interface {
	Sample() Observation
}

// Observation is a synthesized (or real) probe result.
type Observation struct {
	Connectivity  string
	LatencyMs     *float64
	PacketLossPct *float64
	JitterMs      *float64
	Error         string
}

// RandomSampler draws from the fixed placeholder distribution: 78% online,
// 15% degraded, 7% offline.
type RandomSampler struct {
	Rand *rand.Rand
}

func NewRandomSampler(r *rand.Rand) *RandomSampler {
	if r == nil {
		r = rand.New(rand.NewSource(1))
	}
	return &RandomSampler{Rand: r}
}

func (s *RandomSampler) Sample() Observation {
	roll := s.Rand.Float64()
	switch {
	case roll < 0.78:
		return Observation{
			Connectivity:  "online",
			LatencyMs:     ptr(rangeFloat(s.Rand, 70, 130)),
			PacketLossPct: ptr(rangeFloat(s.Rand, 0, 0.3)),
			JitterMs:      ptr(rangeFloat(s.Rand, 3, 12)),
		}
	case roll < 0.93:
		return Observation{
			Connectivity:  "degraded",
			LatencyMs:     ptr(rangeFloat(s.Rand, 160, 320)),
			PacketLossPct: ptr(rangeFloat(s.Rand, 1, 5)),
			JitterMs:      ptr(rangeFloat(s.Rand, 15, 45)),
		}
	default:
		return Observation{
			Connectivity: "offline",
			Error:        "stream unreachable",
		}
	}
}

func rangeFloat(r *rand.Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

func ptr(f float64) *float64 { return &f }
