// Package monitor collects runtime samples and condenses them into the
// factors the decision and adaptation engines consume. Aggregation is an
// EWMA per metric plus a small ring of raw samples for variance.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/microkernel-labs/schedswap/internal/clock"
	"github.com/microkernel-labs/schedswap/internal/decision"
	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/logging"
)

// Sample is one raw observation of the running system.
type Sample struct {
	CPUPercent         uint8
	IPCRate            uint32
	DeadlineMisses     uint32 // misses since the previous sample
	Contention         uint8
	CtxSwitches        uint32 // switches since the previous sample
	WorstLatencyMicros uint64
	ReadyCount         int
	PeriodicRatio      uint8
	TakenAt            uint64 // microseconds
}

// DefaultRingSize is the number of raw samples kept for variance.
const DefaultRingSize = 64

// DefaultPeriod is the sampling loop interval.
const DefaultPeriod = 100 * time.Millisecond

// Probe produces one sample per call.
type Probe func() Sample

// Stats summarizes collector activity.
type Stats struct {
	Samples        uint64
	TotalMisses    uint64
	TotalSwitches  uint64
	WorstLatency   uint64
	PeakCPUPercent uint8
}

// Collector aggregates samples. Safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	clk   clock.Clock
	log   *logging.Logger
	probe Probe

	period time.Duration
	alpha  float64

	ring  []Sample
	next  int
	count int

	ewmaCPU float64
	ewmaIPC float64
	last    Sample
	stats   Stats

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Collector.
type Option func(*Collector)

// WithRingSize sets the raw-sample ring capacity.
func WithRingSize(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.ring = make([]Sample, n)
		}
	}
}

// WithAlpha sets the EWMA smoothing factor.
func WithAlpha(a float64) Option {
	return func(c *Collector) {
		if a > 0 && a < 1 {
			c.alpha = a
		}
	}
}

// WithPeriod sets the sampling loop interval.
func WithPeriod(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.period = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Collector) {
		if log != nil {
			c.log = log.WithComponent("monitor")
		}
	}
}

// NewCollector creates a collector fed by the given probe.
func NewCollector(clk clock.Clock, probe Probe, opts ...Option) *Collector {
	c := &Collector{
		clk:    clk,
		log:    logging.NopLogger(),
		probe:  probe,
		period: DefaultPeriod,
		alpha:  0.10,
		ring:   make([]Sample, DefaultRingSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record folds one sample into the aggregates.
func (c *Collector) Record(s Sample) {
	if s.TakenAt == 0 {
		s.TakenAt = c.clk.Micros()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stats.Samples == 0 {
		c.ewmaCPU = float64(s.CPUPercent)
		c.ewmaIPC = float64(s.IPCRate)
	} else {
		c.ewmaCPU = c.alpha*float64(s.CPUPercent) + (1-c.alpha)*c.ewmaCPU
		c.ewmaIPC = c.alpha*float64(s.IPCRate) + (1-c.alpha)*c.ewmaIPC
	}

	c.ring[c.next] = s
	c.next = (c.next + 1) % len(c.ring)
	if c.count < len(c.ring) {
		c.count++
	}
	c.last = s

	c.stats.Samples++
	c.stats.TotalMisses += uint64(s.DeadlineMisses)
	c.stats.TotalSwitches += uint64(s.CtxSwitches)
	if s.WorstLatencyMicros > c.stats.WorstLatency {
		c.stats.WorstLatency = s.WorstLatencyMicros
	}
	if s.CPUPercent > c.stats.PeakCPUPercent {
		c.stats.PeakCPUPercent = s.CPUPercent
	}
}

// Factors condenses the aggregates into a decision input. The variance
// field is the mean absolute deviation of CPU samples in the ring, which
// keeps it on the same 0..100 scale as the samples.
func (c *Collector) Factors() decision.Factors {
	c.mu.Lock()
	defer c.mu.Unlock()

	return decision.Factors{
		CPUPercent:     uint8(c.ewmaCPU + 0.5),
		IPCRate:        uint32(c.ewmaIPC + 0.5),
		DeadlineMisses: c.last.DeadlineMisses,
		WorstLatency:   c.last.WorstLatencyMicros,
		Contention:     c.last.Contention,
		LoadVariance:   c.cpuDeviationLocked(),
		ReadyCount:     c.last.ReadyCount,
		CtxSwitchRate:  c.last.CtxSwitches,
		PeriodicRatio:  c.last.PeriodicRatio,
	}
}

func (c *Collector) cpuDeviationLocked() uint32 {
	if c.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < c.count; i++ {
		sum += float64(c.ring[i].CPUPercent)
	}
	mean := sum / float64(c.count)

	var dev float64
	for i := 0; i < c.count; i++ {
		d := float64(c.ring[i].CPUPercent) - mean
		if d < 0 {
			d = -d
		}
		dev += d
	}
	return uint32(dev / float64(c.count))
}

// Last returns the most recent raw sample.
func (c *Collector) Last() Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Stats returns a copy of the collector counters.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Start runs the sampling loop until the context is canceled or Stop is
// called. It requires a probe.
func (c *Collector) Start(ctx context.Context) error {
	if c.probe == nil {
		return errors.NewValidationError("collector has no probe")
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return errors.ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	period := c.period
	c.mu.Unlock()

	go c.loop(loopCtx, period)
	return nil
}

// Stop halts the sampling loop and waits for it to exit.
func (c *Collector) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Collector) loop(ctx context.Context, period time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Record(c.probe())
		}
	}
}
