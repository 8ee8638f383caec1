package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/microkernel-labs/schedswap/internal/clock"
)

func TestRecordAndFactors(t *testing.T) {
	clk := clock.NewSimulated()
	c := NewCollector(clk, nil)

	c.Record(Sample{CPUPercent: 40, IPCRate: 200, Contention: 20, CtxSwitches: 500})

	f := c.Factors()
	if f.CPUPercent != 40 {
		t.Errorf("CPUPercent = %d, want 40 (first sample seeds the EWMA)", f.CPUPercent)
	}
	if f.IPCRate != 200 {
		t.Errorf("IPCRate = %d, want 200", f.IPCRate)
	}
	if f.Contention != 20 {
		t.Errorf("Contention = %d, want 20", f.Contention)
	}
}

func TestEWMASmoothing(t *testing.T) {
	clk := clock.NewSimulated()
	c := NewCollector(clk, nil, WithAlpha(0.5))

	c.Record(Sample{CPUPercent: 100})
	c.Record(Sample{CPUPercent: 0})

	// 0.5*0 + 0.5*100 = 50
	if f := c.Factors(); f.CPUPercent != 50 {
		t.Errorf("CPUPercent = %d, want 50", f.CPUPercent)
	}
}

func TestVarianceStableLoad(t *testing.T) {
	clk := clock.NewSimulated()
	c := NewCollector(clk, nil)

	for i := 0; i < 10; i++ {
		c.Record(Sample{CPUPercent: 50})
	}
	if f := c.Factors(); f.LoadVariance != 0 {
		t.Errorf("LoadVariance = %d, want 0 for a flat load", f.LoadVariance)
	}
}

func TestVarianceSpikyLoad(t *testing.T) {
	clk := clock.NewSimulated()
	c := NewCollector(clk, nil)

	for i := 0; i < 10; i++ {
		cpu := uint8(10)
		if i%2 == 1 {
			cpu = 90
		}
		c.Record(Sample{CPUPercent: cpu})
	}
	// Mean 50, every sample 40 away
	if f := c.Factors(); f.LoadVariance != 40 {
		t.Errorf("LoadVariance = %d, want 40", f.LoadVariance)
	}
}

func TestRingWindowBounds(t *testing.T) {
	clk := clock.NewSimulated()
	c := NewCollector(clk, nil, WithRingSize(4))

	// Old spiky samples fall out of the window
	for i := 0; i < 8; i++ {
		c.Record(Sample{CPUPercent: uint8(10 + 10*i)})
	}
	for i := 0; i < 4; i++ {
		c.Record(Sample{CPUPercent: 60})
	}
	if f := c.Factors(); f.LoadVariance != 0 {
		t.Errorf("LoadVariance = %d, want 0 once the window is flat", f.LoadVariance)
	}
}

func TestStats(t *testing.T) {
	clk := clock.NewSimulated()
	c := NewCollector(clk, nil)

	c.Record(Sample{CPUPercent: 30, DeadlineMisses: 2, CtxSwitches: 100, WorstLatencyMicros: 40})
	c.Record(Sample{CPUPercent: 90, DeadlineMisses: 1, CtxSwitches: 150, WorstLatencyMicros: 10})

	s := c.Stats()
	if s.Samples != 2 {
		t.Errorf("Samples = %d, want 2", s.Samples)
	}
	if s.TotalMisses != 3 {
		t.Errorf("TotalMisses = %d, want 3", s.TotalMisses)
	}
	if s.TotalSwitches != 250 {
		t.Errorf("TotalSwitches = %d, want 250", s.TotalSwitches)
	}
	if s.WorstLatency != 40 {
		t.Errorf("WorstLatency = %d, want 40", s.WorstLatency)
	}
	if s.PeakCPUPercent != 90 {
		t.Errorf("PeakCPUPercent = %d, want 90", s.PeakCPUPercent)
	}
}

func TestStartStopLoop(t *testing.T) {
	clk := clock.NewSimulated()
	c := NewCollector(clk, func() Sample {
		return Sample{CPUPercent: 25}
	}, WithPeriod(time.Millisecond))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Error("second Start succeeded, want error")
	}

	deadline := time.Now().Add(time.Second)
	for c.Stats().Samples == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	c.Stop()

	if c.Stats().Samples == 0 {
		t.Error("loop recorded no samples")
	}
	// Stop is idempotent
	c.Stop()
}

func TestStartWithoutProbe(t *testing.T) {
	c := NewCollector(clock.NewSimulated(), nil)
	if err := c.Start(context.Background()); err == nil {
		t.Error("Start without probe succeeded, want error")
	}
}
