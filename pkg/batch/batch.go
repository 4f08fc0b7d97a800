// Package batch implements the adaptive batch sizer (C9): a single atomic
// integer bounded to [min, max], retuned from observed queue depth, CPU
// load, and persist latency. Other components (C7 persistence chunking,
// C8 consumer prefetch) read the current value with a lock-free load.
package batch

import (
	"sync/atomic"
	"time"
)

// Config bounds and steps the sizer, matching the batch.* configuration
// keys.
type Config struct {
	Min               int
	Max               int
	Initial           int
	Step              int
	QueueDepthThresh  int
	LoadThreshold     float64
	FastPersistMillis float64 // below this, average persist time encourages growth
}

// DefaultConfig matches spec.md §4.9's defaults.
func DefaultConfig() Config {
	return Config{
		Min:               10,
		Max:               1000,
		Initial:           100,
		Step:              10,
		QueueDepthThresh:  1000,
		LoadThreshold:     0.8,
		FastPersistMillis: 10,
	}
}

// Sampler supplies the external signals the sizer reacts to.
type Sampler interface {
	QueueDepth() int
	SystemLoad() float64 // 0..1
}

// Sizer owns the atomic batch_size and the decision logic from §4.9. It is
// safe for concurrent use; Adjust is meant to be invoked by one dedicated
// timer goroutine, while CurrentSize is read from any number of workers.
type Sizer struct {
	cfg     Config
	size    atomic.Int64
	sampler Sampler

	avgPersistNanos atomic.Int64 // running average persist duration in nanoseconds
	persistSamples  atomic.Int64
}

// New constructs a Sizer seeded at cfg.Initial.
func New(cfg Config, sampler Sampler) *Sizer {
	s := &Sizer{cfg: cfg, sampler: sampler}
	s.size.Store(int64(clamp(cfg.Initial, cfg.Min, cfg.Max)))
	return s
}

// CurrentSize returns the current batch size, a lock-free read.
func (s *Sizer) CurrentSize() int {
	return int(s.size.Load())
}

// SetSampler attaches the Sampler after construction. This breaks a
// construction cycle some callers have between a Sizer and the very
// component it samples (e.g. a consumer pool whose Requalify call needs
// a Sizer that in turn needs the pool as its Sampler): build the Sizer
// with a placeholder Sampler, build the sampled component from it, then
// call SetSampler once the real Sampler exists.
func (s *Sizer) SetSampler(sampler Sampler) {
	s.sampler = sampler
}

// ObservePersist folds one persistence-chunk latency into the running
// average used by Adjust's fast-persist-time signal.
func (s *Sizer) ObservePersist(d time.Duration) {
	n := s.persistSamples.Add(1)
	prevAvg := s.avgPersistNanos.Load()
	// Running average: avg += (sample - avg) / n, kept in nanoseconds.
	newAvg := prevAvg + (d.Nanoseconds()-prevAvg)/n
	s.avgPersistNanos.Store(newAvg)
}

func (s *Sizer) averagePersistMillis() float64 {
	return float64(s.avgPersistNanos.Load()) / float64(time.Millisecond)
}

// Adjust runs one decision cycle: called every 30s by the bootstrap sizer
// loop's timer goroutine. Batch commits only feed ObservePersist; they do
// not call Adjust.
func (s *Sizer) Adjust() int {
	depth := s.sampler.QueueDepth()
	load := s.sampler.SystemLoad()
	avgPersistMs := s.averagePersistMillis()

	current := int(s.size.Load())
	next := current

	switch {
	case depth > s.cfg.QueueDepthThresh && load < 0.7:
		next = current + s.cfg.Step
	case depth < s.cfg.QueueDepthThresh/2 || load > s.cfg.LoadThreshold:
		next = current - s.cfg.Step
	}

	// Persist-latency signal layered on top of the queue/load decision.
	if s.persistSamples.Load() > 0 {
		if avgPersistMs < s.cfg.FastPersistMillis && next == current {
			next = current + s.cfg.Step
		}
		if load > s.cfg.LoadThreshold {
			next = current - s.cfg.Step
		}
	}

	next = clamp(next, s.cfg.Min, s.cfg.Max)
	s.size.Store(int64(next))
	return next
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// PrefetchFor clamps the adaptive batch size into the consumer prefetch
// bounds, per SPEC_FULL §13(a): the sizer drives both the persistence
// chunk and the bus consumer's prefetch count.
func (s *Sizer) PrefetchFor(min, max int) int {
	return clamp(s.CurrentSize(), min, max)
}
