package sim

import (
	"fmt"
	"sort"

	"github.com/microkernel-labs/schedswap/internal/adapt"
	"github.com/microkernel-labs/schedswap/internal/clock"
	"github.com/microkernel-labs/schedswap/internal/config"
	"github.com/microkernel-labs/schedswap/internal/decision"
	"github.com/microkernel-labs/schedswap/internal/logging"
	"github.com/microkernel-labs/schedswap/internal/migrate"
	"github.com/microkernel-labs/schedswap/internal/monitor"
	"github.com/microkernel-labs/schedswap/internal/readyq"
	"github.com/microkernel-labs/schedswap/internal/sched"
	"github.com/microkernel-labs/schedswap/internal/sched/plugins/edf"
	"github.com/microkernel-labs/schedswap/internal/sched/plugins/priority"
	"github.com/microkernel-labs/schedswap/internal/sched/plugins/roundrobin"
	"github.com/microkernel-labs/schedswap/internal/switcher"
	"github.com/microkernel-labs/schedswap/internal/task"
)

// StrategyFromName maps a config strategy name to its identifier.
func StrategyFromName(name string) (sched.StrategyID, error) {
	switch name {
	case roundrobin.Name:
		return sched.StrategyRoundRobin, nil
	case priority.Name:
		return sched.StrategyStaticPriority, nil
	case edf.Name:
		return sched.StrategyEDF, nil
	default:
		return sched.StrategyNone, fmt.Errorf("unknown strategy %q", name)
	}
}

// activation tracks one synthetic task's runtime state.
type activation struct {
	spec        TaskSpec
	task        *task.Task
	nextArrival uint64
	remaining   uint64 // burst ticks left in the current activation
	deadline    uint64 // absolute microseconds, 0 when none
	missed      bool   // current activation already counted as a miss
	queued      bool
}

// Result summarizes one simulation run.
type Result struct {
	Name      string
	TicksRun  uint64
	Arrivals  uint64
	Completed uint64
	Overruns  uint64 // activations that arrived before the previous one finished
	Misses    uint64 // activations that blew their deadline
	EventErrs []string
	Switches  switcher.Stats
	History   []switcher.SwitchRecord
	Monitor   monitor.Stats
	Final     sched.StrategyID
	Advice    []adapt.Recommendation // surfaced but unapplied recommendations
}

// Runner drives the full scheduling stack against a scripted scenario on a
// simulated clock.
type Runner struct {
	scn *Scenario
	cfg *config.Config
	log *logging.Logger

	clk       *clock.Simulated
	table     *task.Table
	core      *sched.Core
	ctrl      *switcher.Controller
	collector *monitor.Collector
	adapter   *adapt.Engine

	active    map[uint32]*activation
	order     []uint32 // stable iteration order for arrivals
	nextEvent int
	tick      uint64

	res Result
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRunner assembles the core, plugins, switch controller, monitor and
// adaptation engine the way the daemon does, but on a simulated clock.
func NewRunner(scn *Scenario, cfg *config.Config, opts ...Option) (*Runner, error) {
	if err := scn.Validate(); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}

	r := &Runner{
		scn:    scn,
		cfg:    cfg,
		log:    logging.NopLogger(),
		clk:    clock.NewSimulated(),
		active: make(map[uint32]*activation),
	}
	for _, opt := range opts {
		opt(r)
	}
	log := r.log.WithComponent("sim")

	r.table = task.NewTable(cfg.Scheduler.QueueCapacity)
	r.core = sched.NewCore(r.clk, r.table, sched.WithLogger(r.log))

	// Register the built-in strategies.
	rr := roundrobin.New(roundrobin.WithTimeSlice(uint64(cfg.Scheduler.TimeSliceTicks)))
	if err := r.core.Register(rr, roundrobin.Descriptor()); err != nil {
		return nil, err
	}
	var qOpts []readyq.Option
	if cfg.Scheduler.Aging.Enabled {
		qOpts = append(qOpts, readyq.WithAging(
			uint64(cfg.Scheduler.Aging.PeriodTicks),
			uint64(cfg.Scheduler.Aging.ThresholdTicks),
			uint8(cfg.Scheduler.Aging.Boost)))
	}
	pri := priority.New(priority.WithQueueOptions(qOpts...))
	if err := r.core.Register(pri, priority.Descriptor()); err != nil {
		return nil, err
	}
	if err := r.core.Register(edf.New(), edf.Descriptor()); err != nil {
		return nil, err
	}

	initial, err := StrategyFromName(cfg.Scheduler.DefaultStrategy)
	if err != nil {
		return nil, err
	}
	if err := r.core.Activate(initial); err != nil {
		return nil, err
	}

	mig := migrate.NewEngine(r.clk, migrate.WithLogger(r.log))
	r.ctrl = switcher.NewController(r.clk, r.core, mig,
		switcher.WithLogger(r.log),
		switcher.WithPolicy(switcher.Policy{
			MinIntervalMicros: cfg.Switch.MinIntervalMicros(),
			MaxDurationMicros: uint64(cfg.Switch.MaxDurationUs),
			MaxCriticalMicros: uint64(cfg.Switch.MaxCriticalUs),
			DryRun:            cfg.Switch.DryRun,
		}))

	r.collector = monitor.NewCollector(r.clk, nil,
		monitor.WithRingSize(cfg.Monitor.RingSize),
		monitor.WithAlpha(cfg.Monitor.Alpha),
		monitor.WithLogger(r.log))

	dec := decision.NewEngine(
		decision.WithLogger(r.log),
		decision.WithConfig(decisionConfig(cfg.Decision)))

	mode, err := adapt.ParseMode(cfg.Adaptation.Mode)
	if err != nil {
		return nil, err
	}
	adaptCfg := adapt.DefaultConfig()
	adaptCfg.EvalPeriod = cfg.Adaptation.EvalPeriod()
	adaptCfg.StabilityWindow = cfg.Adaptation.StabilityWindow()
	adaptCfg.Alpha = cfg.Adaptation.Alpha
	adaptCfg.ConfidenceThreshold = uint8(cfg.Adaptation.ConfidenceThreshold)
	adaptCfg.DeadlineMissLimit = uint32(cfg.Decision.DeadlineMissLimit)
	adaptCfg.ContentionLimit = uint8(cfg.Decision.ContentionLimit)

	migStrategy, err := migrate.ParseStrategy(cfg.Switch.MigrationStrategy)
	if err != nil {
		return nil, err
	}
	apply := func(target sched.StrategyID, trigger adapt.Trigger) error {
		_, err := r.ctrl.Switch(target, migStrategy, "adaptation")
		return err
	}
	r.adapter = adapt.NewEngine(dec, r.collector.Factors, r.registeredIDs, r.core.ActiveID, apply,
		adapt.WithConfig(adaptCfg),
		adapt.WithMode(mode),
		adapt.WithLogger(r.log),
		adapt.WithObserver(func(rec adapt.Recommendation) {
			r.res.Advice = append(r.res.Advice, rec)
		}))

	// Seed the initial task set.
	for _, spec := range scn.Tasks {
		r.addTask(spec)
	}

	log.Info("runner ready",
		"scenario", scn.Name,
		"tasks", len(scn.Tasks),
		"strategy", initial.String())

	r.res.Name = scn.Name
	return r, nil
}

func decisionConfig(dc config.DecisionConfig) decision.Config {
	cfg := decision.DefaultConfig()
	cfg.Weights = decision.Weights{
		CPU:        uint16(dc.Weights.CPU),
		IPC:        uint16(dc.Weights.IPC),
		Deadline:   uint16(dc.Weights.Deadline),
		Contention: uint16(dc.Weights.Contention),
	}
	cfg.BiasPercent = uint8(dc.MatrixBiasPct)
	cfg.DeadlineMissLimit = uint32(dc.DeadlineMissLimit)
	cfg.WorstLatencyLimit = uint64(dc.WorstLatencyLimitUs)
	cfg.ContentionLimit = uint8(dc.ContentionLimit)
	return cfg
}

func (r *Runner) registeredIDs() []sched.StrategyID {
	descs := r.core.Registry().List()
	ids := make([]sched.StrategyID, 0, len(descs))
	for _, d := range descs {
		ids = append(ids, d.ID)
	}
	return ids
}

func (r *Runner) addTask(spec TaskSpec) {
	a := &activation{spec: spec, nextArrival: spec.StartTick}
	r.active[spec.ID] = a
	r.order = append(r.order, spec.ID)
}

func (r *Runner) removeTask(id uint32) {
	a, ok := r.active[id]
	if !ok {
		return
	}
	if a.queued {
		_, _ = r.core.Active().Dequeue(id)
	}
	if a.task != nil {
		_ = r.table.Remove(id)
	}
	delete(r.active, id)
	for i, tid := range r.order {
		if tid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// arrive activates a task: first arrival registers it in the table, later
// arrivals re-arm the deadline and re-enqueue.
func (r *Runner) arrive(a *activation) error {
	if a.queued {
		// Previous activation still running: overrun, skip this arrival.
		r.res.Overruns++
		if a.spec.PeriodTicks > 0 {
			a.nextArrival += a.spec.PeriodTicks
		}
		return nil
	}

	if a.task == nil {
		a.task = &task.Task{
			ID:                a.spec.ID,
			Name:              a.spec.Name,
			BasePriority:      a.spec.Priority,
			EffectivePriority: a.spec.Priority,
			Period:            a.spec.PeriodTicks,
			WCET:              a.spec.BurstTicks * clock.MicrosPerTick,
		}
		if err := r.table.Add(a.task); err != nil {
			return err
		}
	}

	a.remaining = a.spec.BurstTicks
	a.missed = false
	a.deadline = 0
	if a.spec.DeadlineTicks > 0 {
		a.deadline = r.clk.Micros() + a.spec.DeadlineTicks*clock.MicrosPerTick
	}
	a.task.Deadline = a.deadline
	a.task.EnqueuedAt = r.clk.Ticks()

	if err := r.core.Active().Enqueue(a.task); err != nil {
		return err
	}
	a.queued = true
	r.res.Arrivals++
	if a.spec.PeriodTicks > 0 {
		a.nextArrival += a.spec.PeriodTicks
	} else {
		a.nextArrival = 0 // one-shot
	}
	return nil
}

// complete retires the current activation.
func (r *Runner) complete(a *activation) {
	_, _ = r.core.Active().Dequeue(a.spec.ID)
	a.queued = false
	r.res.Completed++
	if a.spec.PeriodTicks == 0 {
		r.removeTask(a.spec.ID)
	}
}

// Step advances the simulation by one tick.
func (r *Runner) Step() error {
	r.clk.Advance(1)
	r.tick++
	now := r.clk.Ticks()

	// Arrivals.
	for _, id := range append([]uint32(nil), r.order...) {
		a, ok := r.active[id]
		if !ok {
			continue
		}
		due := a.nextArrival == r.tick || (a.task == nil && a.spec.StartTick <= r.tick && a.nextArrival <= r.tick)
		if due {
			if err := r.arrive(a); err != nil {
				return err
			}
		}
	}

	// Scripted events.
	for r.nextEvent < len(r.scn.Events) && r.scn.Events[r.nextEvent].AtTick <= r.tick {
		r.runEvent(r.scn.Events[r.nextEvent])
		r.nextEvent++
	}

	// Let the active strategy account for the tick.
	r.core.Tick(now)

	// Execute one tick of the picked task.
	if pick := r.core.Active().PickNext(); pick != nil {
		if a, ok := r.active[pick.ID]; ok && a.queued {
			if a.remaining > 0 {
				a.remaining--
			}
			a.task.CPUMicros += clock.MicrosPerTick
			a.task.LastRunTick = now
			if a.remaining == 0 {
				if a.deadline > 0 && r.clk.Micros() > a.deadline && !a.missed {
					a.missed = true
					r.res.Misses++
				}
				r.complete(a)
			}
		}
	}

	// Deadline misses for tasks still waiting.
	for _, a := range r.active {
		if a.queued && !a.missed && a.deadline > 0 && r.clk.Micros() > a.deadline {
			a.missed = true
			r.res.Misses++
		}
	}

	// Sampling.
	if period := uint64(r.cfg.Monitor.PeriodMs); period > 0 && r.tick%period == 0 {
		r.sample()
	}

	// Periodic adaptation, driven off the virtual clock instead of the
	// engine's own wall-clock loop.
	if period := uint64(r.cfg.Adaptation.EvalPeriodMs); period > 0 && r.tick%period == 0 {
		_, _ = r.adapter.Evaluate(adapt.TriggerPeriodic)
	}

	return nil
}

// sample synthesizes a monitor sample from the scenario's load phase plus
// the live queue state.
func (r *Runner) sample() {
	phase := r.scn.phaseAt(r.tick)

	queued := r.core.Active().Tasks()
	periodic := 0
	for _, t := range queued {
		if t.Period > 0 {
			periodic++
		}
	}
	ratio := phase.PeriodicRatio
	if len(queued) > 0 {
		ratio = uint8(periodic * 100 / len(queued))
	}

	var missed uint32
	for _, a := range r.active {
		if a.queued && a.missed {
			missed++
		}
	}

	s := monitor.Sample{
		CPUPercent:         phase.CPUPercent,
		IPCRate:            phase.IPCRate,
		Contention:         phase.Contention,
		WorstLatencyMicros: phase.WorstLatency,
		DeadlineMisses:     missed,
		ReadyCount:         len(queued),
		PeriodicRatio:      ratio,
		TakenAt:            r.clk.Micros(),
	}
	r.collector.Record(s)
	r.adapter.Feedback(r.core.ActiveID(), r.collector.Factors())
}

func (r *Runner) runEvent(e EventSpec) {
	switch e.Action {
	case ActionSwitch:
		target, err := StrategyFromName(e.Target)
		if err != nil {
			r.res.EventErrs = append(r.res.EventErrs, err.Error())
			return
		}
		strategy, err := migrate.ParseStrategy(r.cfg.Switch.MigrationStrategy)
		if e.Migration != "" {
			strategy, err = migrate.ParseStrategy(e.Migration)
		}
		if err != nil {
			r.res.EventErrs = append(r.res.EventErrs, err.Error())
			return
		}
		reason := e.Reason
		if reason == "" {
			reason = "scripted"
		}
		if _, err := r.ctrl.Switch(target, strategy, reason); err != nil {
			r.res.EventErrs = append(r.res.EventErrs, fmt.Sprintf("tick %d: switch to %s: %v", r.tick, e.Target, err))
		}
	case ActionEvaluate:
		if _, err := r.adapter.Evaluate(adapt.TriggerManual); err != nil {
			r.res.EventErrs = append(r.res.EventErrs, fmt.Sprintf("tick %d: evaluate: %v", r.tick, err))
		}
	case ActionSpawn:
		if _, exists := r.active[e.Task.ID]; exists {
			r.res.EventErrs = append(r.res.EventErrs, fmt.Sprintf("tick %d: spawn: task %d already exists", r.tick, e.Task.ID))
			return
		}
		spec := *e.Task
		if spec.StartTick < r.tick {
			spec.StartTick = r.tick
		}
		r.addTask(spec)
	case ActionKill:
		r.removeTask(e.TaskID)
	}
}

// Run drives the scenario to completion and returns the summary.
func (r *Runner) Run() (*Result, error) {
	for r.tick < r.scn.DurationTicks {
		if err := r.Step(); err != nil {
			return nil, err
		}
	}

	r.res.TicksRun = r.tick
	r.res.Switches = r.ctrl.Stats()
	r.res.History = r.ctrl.History()
	r.res.Monitor = r.collector.Stats()
	r.res.Final = r.core.ActiveID()
	sort.Slice(r.res.EventErrs, func(i, j int) bool { return r.res.EventErrs[i] < r.res.EventErrs[j] })
	return &r.res, nil
}

// Tick returns the current virtual tick.
func (r *Runner) Tick() uint64 { return r.tick }

// Core exposes the scheduler core, for inspection.
func (r *Runner) Core() *sched.Core { return r.core }

// Controller exposes the switch controller, for inspection.
func (r *Runner) Controller() *switcher.Controller { return r.ctrl }

// Collector exposes the metrics collector, for inspection.
func (r *Runner) Collector() *monitor.Collector { return r.collector }

// Adapter exposes the adaptation engine, for inspection.
func (r *Runner) Adapter() *adapt.Engine { return r.adapter }

// Duration returns the scenario length in ticks.
func (r *Runner) Duration() uint64 { return r.scn.DurationTicks }

// Advice returns the recommendations surfaced so far without being applied.
func (r *Runner) Advice() []adapt.Recommendation {
	out := make([]adapt.Recommendation, len(r.res.Advice))
	copy(out, r.res.Advice)
	return out
}
