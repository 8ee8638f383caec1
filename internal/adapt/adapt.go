// Package adapt wraps the decision engine in a sampling loop with
// hysteresis, an operating mode, and an optional learning model that tracks
// per-strategy performance and recurring workload patterns.
package adapt

import (
	"context"
	"sync"
	"time"

	"github.com/microkernel-labs/schedswap/internal/decision"
	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/logging"
	"github.com/microkernel-labs/schedswap/internal/sched"
)

// Mode controls how adaptation decisions are acted on.
type Mode uint8

const (
	ModeDisabled  Mode = iota // no evaluation at all
	ModeManual                // evaluate only on explicit request
	ModeAssisted              // evaluate and surface, never apply
	ModeAutomatic             // apply when confident
	ModeLearning              // apply and feed outcomes back into the model
)

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeManual:
		return "manual"
	case ModeAssisted:
		return "assisted"
	case ModeAutomatic:
		return "automatic"
	case ModeLearning:
		return "learning"
	default:
		return "unknown"
	}
}

// ParseMode converts a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "disabled":
		return ModeDisabled, nil
	case "manual":
		return ModeManual, nil
	case "assisted":
		return ModeAssisted, nil
	case "automatic":
		return ModeAutomatic, nil
	case "learning":
		return ModeLearning, nil
	default:
		return ModeDisabled, errors.NewValidationError("unknown adaptation mode").
			WithField("mode").WithValue(s)
	}
}

// Trigger is a bitmask of reasons an evaluation recommended a switch.
type Trigger uint8

const (
	TriggerCPU        Trigger = 1 << 0
	TriggerMemory     Trigger = 1 << 1
	TriggerIPC        Trigger = 1 << 2
	TriggerDeadline   Trigger = 1 << 3
	TriggerContention Trigger = 1 << 4
	TriggerEnergy     Trigger = 1 << 5
	TriggerManual     Trigger = 1 << 6
	TriggerPeriodic   Trigger = 1 << 7
)

// Has reports whether all bits in mask are set.
func (t Trigger) Has(mask Trigger) bool { return t&mask == mask }

// Config carries the adaptation thresholds and learning parameters.
type Config struct {
	EvalPeriod      time.Duration // sampling loop period
	StabilityWindow time.Duration // minimum time between applied switches

	CPULow            uint8
	CPUHigh           uint8
	IPCLow            uint32
	IPCHigh           uint32
	DeadlineMissLimit uint32
	ContentionLimit   uint8

	Alpha               float64 // EWMA smoothing factor
	ConfidenceThreshold uint8   // minimum confidence to auto-apply
}

// DefaultConfig returns the standard adaptation parameters.
func DefaultConfig() Config {
	return Config{
		EvalPeriod:          100 * time.Millisecond,
		StabilityWindow:     time.Second,
		CPULow:              30,
		CPUHigh:             80,
		IPCLow:              100,
		IPCHigh:             1000,
		DeadlineMissLimit:   5,
		ContentionLimit:     50,
		Alpha:               0.10,
		ConfidenceThreshold: 80,
	}
}

// Recommendation is one evaluation outcome.
type Recommendation struct {
	Strategy   sched.StrategyID
	Current    sched.StrategyID
	Trigger    Trigger
	Confidence uint8
	Result     decision.Result
}

// Sampler produces one factors sample per call.
type Sampler func() decision.Factors

// Applier performs a strategy switch on behalf of the engine.
type Applier func(target sched.StrategyID, trigger Trigger) error

// Observer receives recommendations that were not auto-applied.
type Observer func(Recommendation)

// numPatterns is the fixed size of the workload pattern table.
const numPatterns = 16

// patternKey is a quantized workload signature.
type patternKey struct {
	cpu      decision.CPULevel
	ipc      decision.IPCLevel
	workload decision.Workload
}

type patternEntry struct {
	key         patternKey
	strategy    sched.StrategyID
	successRate uint8 // 0..100
	usage       uint64
	avgCPU      float64
	used        bool
}

// strategyRecord is the per-strategy learning state.
type strategyRecord struct {
	score  float64 // EWMA performance score
	avgCPU float64
	avgIPC float64
	usage  uint64
}

// Stats summarizes engine activity.
type Stats struct {
	Evaluations     uint64
	Recommendations uint64
	Applied         uint64
	Suppressed      uint64 // held back by hysteresis or confidence
	PatternHits     uint64
}

// Engine is the adaptation engine. Safe for concurrent use.
type Engine struct {
	mu   sync.Mutex
	mode Mode
	cfg  Config
	dec  *decision.Engine
	log  *logging.Logger

	sample     Sampler
	apply      Applier
	observe    Observer
	registered func() []sched.StrategyID
	current    func() sched.StrategyID

	records   map[sched.StrategyID]*strategyRecord
	patterns  [numPatterns]patternEntry
	lastApply time.Time
	stats     Stats

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default parameters.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithMode sets the initial operating mode.
func WithMode(m Mode) Option {
	return func(e *Engine) { e.mode = m }
}

// WithLogger attaches a logger.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log.WithComponent("adapt")
		}
	}
}

// WithObserver registers a callback for surfaced recommendations.
func WithObserver(fn Observer) Option {
	return func(e *Engine) { e.observe = fn }
}

// NewEngine creates an adaptation engine. sample provides factors,
// registered lists selectable strategies, current names the active one, and
// apply performs switches.
func NewEngine(dec *decision.Engine, sample Sampler, registered func() []sched.StrategyID,
	current func() sched.StrategyID, apply Applier, opts ...Option) *Engine {
	e := &Engine{
		mode:       ModeAssisted,
		cfg:        DefaultConfig(),
		dec:        dec,
		log:        logging.NopLogger(),
		sample:     sample,
		apply:      apply,
		registered: registered,
		current:    current,
		records:    make(map[sched.StrategyID]*strategyRecord),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.Alpha <= 0 || e.cfg.Alpha >= 1 {
		e.cfg.Alpha = 0.10
	}
	return e
}

// Mode returns the current operating mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetMode changes the operating mode.
func (e *Engine) SetMode(m Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = m
}

// Start runs the sampling loop until the context is canceled or Stop is
// called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return errors.ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	period := e.cfg.EvalPeriod
	e.mu.Unlock()

	go e.loop(loopCtx, period)
	return nil
}

// Stop halts the sampling loop and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (e *Engine) loop(ctx context.Context, period time.Duration) {
	defer close(e.done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.Mode() == ModeDisabled || e.Mode() == ModeManual {
				continue
			}
			if _, err := e.Evaluate(TriggerPeriodic); err != nil {
				e.log.Warn("evaluation failed", "error", err)
			}
		}
	}
}

// Evaluate samples factors, decides, and — depending on mode and
// confidence — applies or surfaces the recommendation. Returns the
// recommendation and nil when a switch is unnecessary.
func (e *Engine) Evaluate(cause Trigger) (*Recommendation, error) {
	e.mu.Lock()
	mode := e.mode
	cfg := e.cfg
	e.mu.Unlock()

	if mode == ModeDisabled {
		return nil, nil
	}

	f := e.sample()
	trigger := cause | e.triggersFor(f, cfg)

	res, err := e.dec.Decide(f, e.registered())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.stats.Evaluations++
	e.mu.Unlock()

	cur := e.current()
	if res.Strategy == cur {
		return nil, nil
	}

	conf := e.confidence(res, f)
	rec := &Recommendation{
		Strategy:   res.Strategy,
		Current:    cur,
		Trigger:    trigger,
		Confidence: conf,
		Result:     res,
	}

	e.mu.Lock()
	e.stats.Recommendations++
	sinceApply := time.Since(e.lastApply)
	e.mu.Unlock()

	shouldApply := (mode == ModeAutomatic || mode == ModeLearning) &&
		conf >= cfg.ConfidenceThreshold

	if shouldApply && sinceApply < cfg.StabilityWindow {
		e.mu.Lock()
		e.stats.Suppressed++
		e.mu.Unlock()
		e.log.Debug("switch suppressed by stability window",
			"target", res.Strategy.String(), "since_last", sinceApply.String())
		return rec, nil
	}

	if !shouldApply {
		if mode == ModeAutomatic || mode == ModeLearning {
			e.mu.Lock()
			e.stats.Suppressed++
			e.mu.Unlock()
		}
		if e.observe != nil {
			e.observe(*rec)
		}
		return rec, nil
	}

	if err := e.apply(res.Strategy, trigger); err != nil {
		return rec, err
	}

	e.mu.Lock()
	e.stats.Applied++
	e.lastApply = time.Now()
	e.mu.Unlock()

	e.log.Info("strategy switch applied",
		"from", cur.String(), "to", res.Strategy.String(),
		"confidence", conf, "reason", res.Reason)

	if mode == ModeLearning {
		e.recordOutcome(res.Strategy, f)
	}
	return rec, nil
}

// triggersFor derives threshold-crossing trigger bits from a sample.
func (e *Engine) triggersFor(f decision.Factors, cfg Config) Trigger {
	var t Trigger
	if f.CPUPercent > cfg.CPUHigh || f.CPUPercent < cfg.CPULow {
		t |= TriggerCPU
	}
	if f.IPCRate > cfg.IPCHigh {
		t |= TriggerIPC
	}
	if f.DeadlineMisses > cfg.DeadlineMissLimit {
		t |= TriggerDeadline
	}
	if f.Contention > cfg.ContentionLimit {
		t |= TriggerContention
	}
	return t
}

// confidence blends the decision's own confidence with the learning model:
// base 50, replaced by the historical success rate once a pattern has real
// usage, boosted when the current CPU load resembles the pattern's average
// and when the pattern is well worn.
func (e *Engine) confidence(res decision.Result, f decision.Factors) uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := patternKey{
		cpu:      decision.ClassifyCPU(f.CPUPercent),
		ipc:      decision.ClassifyIPC(f.IPCRate),
		workload: res.Workload,
	}

	conf := uint16(50)
	if res.Confidence > 50 {
		conf = uint16(res.Confidence)
	}

	for i := range e.patterns {
		p := &e.patterns[i]
		if !p.used || p.key != key || p.strategy != res.Strategy {
			continue
		}
		e.stats.PatternHits++
		if p.usage > 10 {
			conf = (conf + uint16(p.successRate)) / 2
		}
		diff := float64(f.CPUPercent) - p.avgCPU
		if diff >= -10 && diff <= 10 {
			conf += 10
		}
		if p.usage > 100 {
			conf += 10
		}
		break
	}

	if conf > 100 {
		conf = 100
	}
	return uint8(conf)
}

// Feedback reports observed performance for the active strategy, updating
// the EWMA score and the pattern table. Learning mode calls this from its
// own loop; external callers may feed outcomes in any mode.
func (e *Engine) Feedback(strategy sched.StrategyID, f decision.Factors) {
	e.recordOutcome(strategy, f)
}

func (e *Engine) recordOutcome(strategy sched.StrategyID, f decision.Factors) {
	score := PerformanceScore(f)

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.records[strategy]
	if !ok {
		rec = &strategyRecord{score: float64(score)}
		e.records[strategy] = rec
	}
	alpha := e.cfg.Alpha
	rec.score = alpha*float64(score) + (1-alpha)*rec.score
	rec.avgCPU = alpha*float64(f.CPUPercent) + (1-alpha)*rec.avgCPU
	rec.avgIPC = alpha*float64(f.IPCRate) + (1-alpha)*rec.avgIPC
	rec.usage++

	key := patternKey{
		cpu:      decision.ClassifyCPU(f.CPUPercent),
		ipc:      decision.ClassifyIPC(f.IPCRate),
		workload: decision.Classify(f),
	}
	e.updatePatternLocked(key, strategy, score, f)
}

// updatePatternLocked folds an outcome into the pattern table, evicting the
// lowest-usage entry when the table is full.
func (e *Engine) updatePatternLocked(key patternKey, strategy sched.StrategyID, score uint8, f decision.Factors) {
	var free, victim *patternEntry
	for i := range e.patterns {
		p := &e.patterns[i]
		if p.used && p.key == key {
			if score >= 50 && p.strategy != strategy {
				// A better performer takes over the pattern
				if score > p.successRate {
					p.strategy = strategy
					p.successRate = score
					p.usage = 1
					p.avgCPU = float64(f.CPUPercent)
					return
				}
			}
			if p.strategy == strategy {
				alpha := e.cfg.Alpha
				p.successRate = uint8(alpha*float64(score) + (1-alpha)*float64(p.successRate))
				p.avgCPU = alpha*float64(f.CPUPercent) + (1-alpha)*p.avgCPU
				p.usage++
			}
			return
		}
		if !p.used && free == nil {
			free = p
		}
		if p.used && (victim == nil || p.usage < victim.usage) {
			victim = p
		}
	}

	slot := free
	if slot == nil {
		slot = victim
	}
	*slot = patternEntry{
		key:         key,
		strategy:    strategy,
		successRate: score,
		usage:       1,
		avgCPU:      float64(f.CPUPercent),
		used:        true,
	}
}

// Score returns the EWMA performance score for a strategy, or 0 when the
// model has never seen it.
func (e *Engine) Score(strategy sched.StrategyID) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[strategy]
	if !ok {
		return 0
	}
	return rec.score
}

// Stats returns a copy of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// PerformanceScore rates a sample on a 0..100 scale: penalties for CPU
// saturation, deadline misses, and contention; a small bonus for a calm
// context-switch rate.
func PerformanceScore(f decision.Factors) uint8 {
	score := 100
	switch {
	case f.CPUPercent > 90:
		score -= 20
	case f.CPUPercent > 80:
		score -= 10
	}
	score -= 10 * int(f.DeadlineMisses)
	if f.Contention > 50 {
		score -= 15
	}
	if f.CtxSwitchRate < 1000 {
		score += 5
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return uint8(score)
}
